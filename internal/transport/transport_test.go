package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/cds"
	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/content"
	"github.com/opencds/mediaserver/internal/mrreg"
	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/update"
)

func newTestRouter(t *testing.T) (*Router, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(context.Background()))
	t.Cleanup(func() { store.Close() })

	updates := update.New(store.Objects(), func(context.Context, []update.Pair) {})
	cfg := config.Default()
	contentMgr := content.New(cfg, store, updates, nil)
	cdsSvc := cds.New(cfg, store, updates)
	mrregSvc := mrreg.New()

	return New(cfg, cdsSvc, mrregSvc, updates, contentMgr), store
}

func TestDeviceDescriptionListsThreeServices(t *testing.T) {
	rt, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/"+rt.udn+"/device.xml", nil)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, contentDirectoryType)
	require.Contains(t, body, connectionManagerType)
	require.Contains(t, body, mrRegistrarType)
	require.Contains(t, body, rt.udn)
}

func TestDeviceDescriptionOmitsMRRegistrarWhenNotWired(t *testing.T) {
	rt, _ := newTestRouter(t)
	rt.mrreg = nil

	req := httptest.NewRequest(http.MethodGet, "/"+rt.udn+"/device.xml", nil)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, contentDirectoryType)
	require.Contains(t, body, connectionManagerType)
	require.NotContains(t, body, mrRegistrarType)

	require.NotContains(t, rt.allServiceTypes(), mrRegistrarType)
	require.False(t, rt.isRegisteredServiceType(mrRegistrarType))
}

func TestControlUDNMismatchReturnsFault(t *testing.T) {
	rt, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/not-the-udn/ContentDirectory/control", strings.NewReader(soapEnvelope("<u:GetSystemUpdateID/>")))
	req.Header.Set("SOAPAction", `"urn:schemas-upnp-org:service:ContentDirectory:1#GetSystemUpdateID"`)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "UPnPError")
}

func TestControlUnknownActionReturnsFault(t *testing.T) {
	rt, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/"+rt.udn+"/ContentDirectory/control", strings.NewReader(soapEnvelope("<u:Bogus/>")))
	req.Header.Set("SOAPAction", `"urn:schemas-upnp-org:service:ContentDirectory:1#Bogus"`)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "401")
}

func TestBrowseControlRendersDIDL(t *testing.T) {
	rt, store := newTestRouter(t)

	f := filepath.Join(t.TempDir(), "x.mp3")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	item := model.NewItem()
	item.ParentID = model.IDFilesystem
	item.Title = "Track One"
	item.Class = "object.item.audioItem.musicTrack"
	item.MimeType = "audio/mpeg"
	item.Location = f
	item.Resources = []model.Resource{model.NewResource(model.HandlerLibrary)}
	_, _, err := store.Objects().AddObject(item)
	require.NoError(t, err)

	args := `<u:Browse><ObjectID>1</ObjectID><BrowseFlag>BrowseDirectChildren</BrowseFlag></u:Browse>`
	req := httptest.NewRequest(http.MethodPost, "/"+rt.udn+"/ContentDirectory/control", strings.NewReader(soapEnvelope(args)))
	req.Header.Set("SOAPAction", `"urn:schemas-upnp-org:service:ContentDirectory:1#Browse"`)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Track One")
}

func TestMRRegistrarIsAuthorizedAlwaysOne(t *testing.T) {
	rt, _ := newTestRouter(t)
	args := `<u:IsAuthorized><DeviceID>anything</DeviceID></u:IsAuthorized>`
	req := httptest.NewRequest(http.MethodPost, "/"+rt.udn+"/X_MS_MediaReceiverRegistrar/control", strings.NewReader(soapEnvelope(args)))
	req.Header.Set("SOAPAction", `"urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1#IsAuthorized"`)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<Result>1</Result>")
}

func TestConnectionManagerGetProtocolInfoIsEmpty(t *testing.T) {
	rt, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/"+rt.udn+"/ConnectionManager/control", strings.NewReader(soapEnvelope("<u:GetProtocolInfo/>")))
	req.Header.Set("SOAPAction", `"urn:schemas-upnp-org:service:ConnectionManager:1#GetProtocolInfo"`)
	w := httptest.NewRecorder()
	rt.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "GetProtocolInfoResponse")
}

func TestExtractActionNameSplitsOnHash(t *testing.T) {
	require.Equal(t, "Browse", extractActionName("urn:schemas-upnp-org:service:ContentDirectory:1#Browse"))
	require.Equal(t, "Browse", extractActionName("Browse"))
}

func TestFirstCallbackParsesAngleBrackets(t *testing.T) {
	require.Equal(t, "http://10.0.0.2:1400/evt", firstCallback("<http://10.0.0.2:1400/evt>"))
	require.Equal(t, "", firstCallback(""))
}

func soapEnvelope(body string) string {
	return `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>` + body + `</s:Body>
</s:Envelope>`
}
