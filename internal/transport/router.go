// Package transport is the C8 Transport Adapter: it translates HTTP/SOAP
// and SSDP wire traffic into the internal action-request representation
// (action name, service id, UDN, XML document), routes each request to
// the ContentDirectory (C6) or MR Registrar (C7) service, renders the
// response XML, and writes it back to the transport. It also owns SSDP
// discovery and the GENA subscribe/event surface, grounded on the
// teacher's server/dlna package.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/opencds/mediaserver/internal/cds"
	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/content"
	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/mrreg"
	"github.com/opencds/mediaserver/internal/update"
)

const (
	ssdpAddr = "239.255.255.250:1900"

	deviceType            = "urn:schemas-upnp-org:device:MediaServer:1"
	contentDirectoryType  = "urn:schemas-upnp-org:service:ContentDirectory:1"
	connectionManagerType = "urn:schemas-upnp-org:service:ConnectionManager:1"
	mrRegistrarType       = "urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1"

	serviceIDContentDirectory  = "urn:upnp-org:serviceId:ContentDirectory"
	serviceIDConnectionManager = "urn:upnp-org:serviceId:ConnectionManager"
	serviceIDMRRegistrar       = "urn:microsoft.com:serviceId:X_MS_MediaReceiverRegistrar"
)

// Router owns the HTTP surface and SSDP lifecycle of the media server
// (spec §4.8).
type Router struct {
	cfg     *config.Config
	cds     *cds.Service
	mrreg   *mrreg.Service
	updates *update.Manager
	content *content.Manager

	serverName string
	udn        string
	httpPort   int

	mu       sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	ssdpConn *net.UDPConn

	subMu   sync.Mutex
	cdsSubs []*cdsSubscriber
}

// New builds a Router wired to the CDS and MR Registrar services. If
// cfg.Server.UDN is empty a fresh one is generated and stored in
// cfg.Server.UDN; New does not write cfg back to the config file, so a
// generated UDN lasts only for the life of the process.
func New(cfg *config.Config, cdsSvc *cds.Service, mrregSvc *mrreg.Service, updates *update.Manager, contentMgr *content.Manager) *Router {
	if cfg.Server.UDN == "" {
		cfg.Server.UDN = "uuid:" + uuid.New().String()
	}
	return &Router{
		cfg:        cfg,
		cds:        cdsSvc,
		mrreg:      mrregSvc,
		updates:    updates,
		content:    contentMgr,
		serverName: "MediaServer",
		udn:        cfg.Server.UDN,
		httpPort:   cfg.Server.Port,
	}
}

// registeredService is one service this Router actually exposes: its
// wire identity (type/id) plus the path segment its SCPD, control and
// event-sub URLs are built from ("<name>.xml", "<name>/control",
// "<name>/event"). device.xml, the HTTP route table and SSDP's
// advertised/matched service types are all derived from services()
// rather than each keeping their own copy of the service list.
type registeredService struct {
	name        string
	serviceType string
	serviceID   string
	scpd        string
}

// services returns the set of UPnP services this device actually
// advertises (spec §6 "Two services are advertised... Optional
// X_MS_MediaReceiverRegistrar"): ContentDirectory and ConnectionManager
// are always present, MR Registrar only when a Service was wired in by
// the caller.
func (rt *Router) services() []registeredService {
	svcs := []registeredService{
		{name: "ContentDirectory", serviceType: contentDirectoryType, serviceID: serviceIDContentDirectory, scpd: contentDirectorySCPD},
		{name: "ConnectionManager", serviceType: connectionManagerType, serviceID: serviceIDConnectionManager, scpd: connectionManagerSCPD},
	}
	if rt.mrreg != nil {
		svcs = append(svcs, registeredService{name: "X_MS_MediaReceiverRegistrar", serviceType: mrRegistrarType, serviceID: serviceIDMRRegistrar, scpd: mrRegistrarSCPD})
	}
	return svcs
}

func (rt *Router) isRegisteredServiceType(st string) bool {
	for _, s := range rt.services() {
		if s.serviceType == st {
			return true
		}
	}
	return false
}

// Routes returns the chi router serving the device description, SCPD,
// control, GENA and media-streaming endpoints.
func (rt *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
	}))

	// Every device-scoped endpoint is addressed under /{udn}/... so the
	// control dispatch can actually observe a UDN mismatch (spec §4.8)
	// instead of that branch being dead code on a single-device server.
	r.Route("/{udn}", func(r chi.Router) {
		r.Get("/device.xml", rt.handleDeviceDescription)
		for _, s := range rt.services() {
			r.Get("/"+s.name+".xml", rt.handleSCPD(s.scpd))
			r.Post("/"+s.name+"/control", rt.handleControl(s.serviceID))
			r.MethodFunc("SUBSCRIBE", "/"+s.name+"/event", rt.handleSubscribe(s.serviceID))
		}
	})

	r.Get("/content/media", rt.handleMedia)

	return r
}

// deviceURL returns the absolute URL of the device description, the
// LOCATION SSDP advertises and control points fetch first.
func (rt *Router) deviceURL() string {
	return fmt.Sprintf("http://%s:%d/%s/device.xml", localIP(), rt.httpPort, rt.udn)
}

// Start begins SSDP announcements and M-SEARCH handling (spec §4.8).
func (rt *Router) Start(ctx context.Context) error {
	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()
		return nil
	}
	rt.ctx, rt.cancel = context.WithCancel(ctx)
	rt.running = true
	rt.mu.Unlock()

	if err := rt.startSSDP(); err != nil {
		return fmt.Errorf("starting SSDP: %w", err)
	}
	rt.announcePresence()
	log.Info(rt.ctx, "transport: started", "udn", rt.udn, "port", rt.httpPort)
	return nil
}

// Stop sends byebye notifications and tears down SSDP.
func (rt *Router) Stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.running {
		return
	}
	rt.sendByeBye()
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.ssdpConn != nil {
		rt.ssdpConn.Close()
	}
	rt.running = false
	log.Info(context.Background(), "transport: stopped")
}

func (rt *Router) baseURL(req *http.Request) string {
	if rt.cfg.Server.IP != "" {
		return fmt.Sprintf("http://%s:%d", rt.cfg.Server.IP, rt.httpPort)
	}
	scheme := "http"
	if req != nil && req.TLS != nil {
		scheme = "https"
	}
	if req != nil && req.Host != "" {
		return fmt.Sprintf("%s://%s", scheme, req.Host)
	}
	return fmt.Sprintf("http://%s:%d", localIP(), rt.httpPort)
}
