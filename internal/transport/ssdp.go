package transport

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/opencds/mediaserver/internal/log"
)

const (
	ssdpAlive  = "ssdp:alive"
	ssdpByeBye = "ssdp:byebye"
	ssdpAll    = "ssdp:all"

	cacheMaxAge      = 1800
	announceInterval = 30 * time.Minute
)

func (rt *Router) startSSDP() error {
	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return fmt.Errorf("resolving SSDP address: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("listening on multicast: %w", err)
	}
	if err := conn.SetReadBuffer(65535); err != nil {
		log.Warn(rt.ctx, "transport: failed to set SSDP read buffer", "error", err)
	}
	rt.ssdpConn = conn

	go rt.listenSSDP()
	go rt.periodicAnnounce()
	return nil
}

func (rt *Router) listenSSDP() {
	buf := make([]byte, 2048)
	for {
		select {
		case <-rt.ctx.Done():
			return
		default:
		}
		if err := rt.ssdpConn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			continue
		}
		n, remoteAddr, err := rt.ssdpConn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Error(rt.ctx, "transport: SSDP read error", err)
			continue
		}
		msg := string(buf[:n])
		if strings.HasPrefix(msg, "M-SEARCH") {
			rt.handleMSearch(msg, remoteAddr)
		}
	}
}

func (rt *Router) handleMSearch(msg string, remoteAddr *net.UDPAddr) {
	st := extractHeader(msg, "ST")
	if st == "" {
		return
	}

	var targets []string
	switch {
	case st == ssdpAll:
		targets = rt.allServiceTypes()
	case st == "upnp:rootdevice" || st == deviceType || rt.isRegisteredServiceType(st):
		targets = []string{st}
	case st == rt.udn:
		targets = []string{rt.udn}
	}
	if len(targets) == 0 {
		return
	}

	log.Debug(rt.ctx, "transport: responding to M-SEARCH", "st", st, "from", remoteAddr.String())
	for _, t := range targets {
		rt.sendSearchResponse(t, remoteAddr)
	}
}

func (rt *Router) sendSearchResponse(st string, remoteAddr *net.UDPAddr) {
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"CACHE-CONTROL: max-age=%d\r\n"+
		"DATE: %s\r\n"+
		"EXT:\r\n"+
		"LOCATION: %s\r\n"+
		"SERVER: %s\r\n"+
		"ST: %s\r\n"+
		"USN: %s\r\n"+
		"BOOTID.UPNP.ORG: 1\r\n"+
		"CONFIGID.UPNP.ORG: 1\r\n"+
		"\r\n",
		cacheMaxAge, time.Now().UTC().Format(time.RFC1123), rt.deviceURL(), rt.serverString(), st, rt.usn(st))

	conn, err := net.DialUDP("udp4", nil, remoteAddr)
	if err != nil {
		log.Error(rt.ctx, "transport: M-SEARCH response dial failed", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(response)); err != nil {
		log.Error(rt.ctx, "transport: M-SEARCH response write failed", err)
	}
}

func (rt *Router) announcePresence() {
	for _, t := range rt.allServiceTypes() {
		rt.sendNotify(t, ssdpAlive)
	}
}

func (rt *Router) sendByeBye() {
	for _, t := range rt.allServiceTypes() {
		rt.sendNotify(t, ssdpByeBye)
	}
}

func (rt *Router) periodicAnnounce() {
	interval := rt.cfg.AliveInterval()
	if interval <= 0 {
		interval = announceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-ticker.C:
			rt.announcePresence()
		}
	}
}

func (rt *Router) sendNotify(nt, nts string) {
	var msg string
	if nts == ssdpByeBye {
		msg = fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"NT: %s\r\n"+
			"NTS: %s\r\n"+
			"USN: %s\r\n"+
			"BOOTID.UPNP.ORG: 1\r\n"+
			"CONFIGID.UPNP.ORG: 1\r\n"+
			"\r\n",
			ssdpAddr, nt, nts, rt.usn(nt))
	} else {
		msg = fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
			"HOST: %s\r\n"+
			"CACHE-CONTROL: max-age=%d\r\n"+
			"LOCATION: %s\r\n"+
			"NT: %s\r\n"+
			"NTS: %s\r\n"+
			"SERVER: %s\r\n"+
			"USN: %s\r\n"+
			"BOOTID.UPNP.ORG: 1\r\n"+
			"CONFIGID.UPNP.ORG: 1\r\n"+
			"\r\n",
			ssdpAddr, cacheMaxAge, rt.deviceURL(), nt, nts, rt.serverString(), rt.usn(nt))
	}

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		log.Error(rt.ctx, "transport: resolving SSDP address for NOTIFY", err)
		return
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		log.Error(rt.ctx, "transport: NOTIFY dial failed", err)
		return
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if _, err := conn.Write([]byte(msg)); err != nil {
			log.Error(rt.ctx, "transport: NOTIFY write failed", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// allServiceTypes is every target M-SEARCH's "ssdp:all" and NOTIFY's
// alive/byebye announcements address, derived from the device's root
// identity plus whichever services were actually wired into this Router
// (spec §6 EXTERNAL INTERFACES) rather than a hardcoded list.
func (rt *Router) allServiceTypes() []string {
	types := []string{"upnp:rootdevice", rt.udn, deviceType}
	for _, s := range rt.services() {
		types = append(types, s.serviceType)
	}
	return types
}

func (rt *Router) usn(st string) string {
	if st == rt.udn {
		return rt.udn
	}
	return fmt.Sprintf("%s::%s", rt.udn, st)
}

func (rt *Router) serverString() string {
	return fmt.Sprintf("Linux/1.0 UPnP/1.1 %s/1.0", rt.serverName)
}

func extractHeader(msg, header string) string {
	prefix := header + ":"
	for _, line := range strings.Split(msg, "\r\n") {
		if strings.HasPrefix(strings.ToUpper(line), strings.ToUpper(prefix)) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

func getActiveInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var active []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}
	return active, nil
}

func localIP() string {
	ifaces, err := getActiveInterfaces()
	if err != nil || len(ifaces) == 0 {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
