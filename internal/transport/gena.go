package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opencds/mediaserver/internal/update"
)

// defaultSubscriptionTimeout is used when a control point's TIMEOUT
// header is absent or malformed.
const defaultSubscriptionTimeout = 1800 * time.Second

// cdsSubscriber is one active GENA subscription to ContentDirectory
// events; seq is the per-subscription NOTIFY sequence counter (UPnP
// eventing requires it start at 0 and increment with every delivery).
type cdsSubscriber struct {
	sid      string
	callback string
	seq      atomic.Uint32
}

// handleSubscribe accepts a GENA SUBSCRIBE request and delivers the
// service's initial event payload (spec §4.8 "the adapter accepts and
// delivers it"; §4.6/§4.7 initial event contents live in the service).
func (rt *Router) handleSubscribe(serviceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if udn := chi.URLParam(req, "udn"); udn != rt.udn {
			http.Error(w, "unknown device UDN", http.StatusBadRequest)
			return
		}

		sid := "uuid:" + uuid.New().String()
		timeout := defaultSubscriptionTimeout
		if v := req.Header.Get("TIMEOUT"); v != "" {
			if secs, ok := parseTimeoutHeader(v); ok {
				timeout = time.Duration(secs) * time.Second
			}
		}

		w.Header().Set("SID", sid)
		w.Header().Set("TIMEOUT", fmt.Sprintf("Second-%d", int(timeout.Seconds())))
		w.WriteHeader(http.StatusOK)

		callback := req.Header.Get("CALLBACK")
		if serviceID == serviceIDContentDirectory {
			rt.addCDSSubscriber(sid, callback)
		}
		go rt.deliverInitialEvent(serviceID, callback, sid)
	}
}

func (rt *Router) addCDSSubscriber(sid, callback string) {
	rt.subMu.Lock()
	defer rt.subMu.Unlock()
	sub := &cdsSubscriber{sid: sid, callback: callback}
	// SEQ 0 is taken by the initial event deliverInitialEvent posts.
	sub.seq.Store(1)
	rt.cdsSubs = append(rt.cdsSubs, sub)
}

// NotifyCDSUpdates is the transport adapter's update.Emitter: it renders
// one GENA propertyset carrying the batch's ContainerUpdateIDs CSV and
// the current SystemUpdateID, and posts it to every active
// ContentDirectory subscriber (spec §4.6 "later events carry updated
// ContainerUpdateIDs CSVs and the new SystemUpdateID").
func (rt *Router) NotifyCDSUpdates(ctx context.Context, pairs []update.Pair) {
	rt.subMu.Lock()
	subs := make([]*cdsSubscriber, len(rt.cdsSubs))
	copy(subs, rt.cdsSubs)
	rt.subMu.Unlock()
	if len(subs) == 0 {
		return
	}

	var csv strings.Builder
	for i, p := range pairs {
		if i > 0 {
			csv.WriteByte(',')
		}
		fmt.Fprintf(&csv, "%d,%d", p.ObjectID, p.UpdateID)
	}

	body := fmt.Sprintf(`<?xml version="1.0"?>
<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
<e:property><ContainerUpdateIDs>%s</ContainerUpdateIDs></e:property>
<e:property><SystemUpdateID>%d</SystemUpdateID></e:property>
</e:propertyset>`, csv.String(), rt.cds.GetSystemUpdateID())

	for _, sub := range subs {
		seq := sub.seq.Add(1) - 1
		rt.postNotifySeq(sub.callback, sub.sid, seq, body)
	}
}

// deliverInitialEvent builds and (best-effort) posts the NOTIFY carrying
// the service's initial event state. Real GENA delivery goes to the
// CALLBACK URL(s) a control point supplied; failures are dropped without
// logging or retry, since this is a courtesy best-effort event.
func (rt *Router) deliverInitialEvent(serviceID, callback, sid string) {
	switch serviceID {
	case serviceIDContentDirectory:
		rt.notifyCDSEvent(sid, callback)
	case serviceIDMRRegistrar:
		rt.notifyMRRegEvent(sid, callback)
	}
}

func (rt *Router) notifyCDSEvent(sid, callback string) {
	updateID := rt.cds.GetSystemUpdateID()
	body := fmt.Sprintf(`<?xml version="1.0"?>
<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
<e:property><SystemUpdateID>%d</SystemUpdateID></e:property>
<e:property><ContainerUpdateIDs>0,%d</ContainerUpdateIDs></e:property>
</e:propertyset>`, updateID, updateID)
	rt.postNotify(callback, sid, body)
}

func (rt *Router) notifyMRRegEvent(sid, callback string) {
	props := rt.mrreg.InitialEventProperties()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">` + "\n")
	for k, v := range props {
		fmt.Fprintf(&b, "<e:property><%s>%s</%s></e:property>\n", k, v, k)
	}
	b.WriteString(`</e:propertyset>`)
	rt.postNotify(callback, sid, b.String())
}

// postNotify sends a GENA NOTIFY to the first callback URL in a
// "<url1>,<url2>,..." CALLBACK header. Delivery errors are dropped
// without logging; there is no retry policy (spec §4.6 events are
// best-effort, collapsible, and superseded by the next batch).
func (rt *Router) postNotify(callback, sid, body string) {
	rt.postNotifySeq(callback, sid, 0, body)
}

func (rt *Router) postNotifySeq(callback, sid string, seq uint32, body string) {
	url := firstCallback(callback)
	if url == "" {
		return
	}
	req, err := http.NewRequest("NOTIFY", url, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sid)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(seq), 10))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func firstCallback(header string) string {
	header = strings.TrimSpace(header)
	start := strings.Index(header, "<")
	end := strings.Index(header, ">")
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return header[start+1 : end]
}

func parseTimeoutHeader(v string) (int, bool) {
	const prefix = "Second-"
	if !strings.HasPrefix(v, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(v, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
