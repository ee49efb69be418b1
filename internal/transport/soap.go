package transport

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opencds/mediaserver/internal/cds"
	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/model"
)

// actionRequest is the internal representation a transport-layer SOAP
// request is translated into before it is routed to a service (spec
// §4.8: "action name, service id, UDN, XML document").
type actionRequest struct {
	Action    string
	ServiceID string
	UDN       string
	Body      []byte
}

// SOAPEnvelope is the outer SOAP 1.1 envelope wrapping an action request
// or response body.
type SOAPEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    SOAPBody
}

type SOAPBody struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Content []byte   `xml:",innerxml"`
}

// UPnP action error codes (spec §4.8, §3 GLOSSARY BadRequest).
const (
	errInvalidAction = 401
	errInvalidArgs   = 402
	errActionFailed  = 501
	errBadRequest    = 402 // no dedicated UPnP code for transport-level BadRequest; reuse InvalidArgs
)

// browseActionArgs is the XML shape of a Browse action's <s:Body> content.
type browseActionArgs struct {
	XMLName        xml.Name `xml:"Browse"`
	ObjectID       string   `xml:"ObjectID"`
	BrowseFlag     string   `xml:"BrowseFlag"`
	Filter         string   `xml:"Filter"`
	StartingIndex  int      `xml:"StartingIndex"`
	RequestedCount int      `xml:"RequestedCount"`
	SortCriteria   string   `xml:"SortCriteria"`
}

type browseResponse struct {
	XMLName        xml.Name `xml:"u:BrowseResponse"`
	XmlnsU         string   `xml:"xmlns:u,attr"`
	Result         string   `xml:"Result"`
	NumberReturned int      `xml:"NumberReturned"`
	TotalMatches   int      `xml:"TotalMatches"`
	UpdateID       uint32   `xml:"UpdateID"`
}

type isAuthorizedArgs struct {
	XMLName  xml.Name `xml:"IsAuthorized"`
	DeviceID string   `xml:"DeviceID"`
}

type isAuthorizedResponse struct {
	XMLName xml.Name `xml:"u:IsAuthorizedResponse"`
	XmlnsU  string   `xml:"xmlns:u,attr"`
	Result  string   `xml:"Result"`
}

type isValidatedResponse struct {
	XMLName xml.Name `xml:"u:IsValidatedResponse"`
	XmlnsU  string   `xml:"xmlns:u,attr"`
	Result  string   `xml:"Result"`
}

type registerDeviceArgs struct {
	XMLName            xml.Name `xml:"RegisterDevice"`
	RegistrationReqMsg string   `xml:"RegistrationReqMsg"`
}

type registerDeviceResponse struct {
	XMLName             xml.Name `xml:"u:RegisterDeviceResponse"`
	XmlnsU               string  `xml:"xmlns:u,attr"`
	RegistrationRespMsg string   `xml:"RegistrationRespMsg"`
}

type getProtocolInfoResponse struct {
	XMLName xml.Name `xml:"u:GetProtocolInfoResponse"`
	XmlnsU  string   `xml:"xmlns:u,attr"`
	Source  string   `xml:"Source"`
	Sink    string   `xml:"Sink"`
}

type getSystemUpdateIDResponse struct {
	XMLName xml.Name `xml:"u:GetSystemUpdateIDResponse"`
	XmlnsU  string   `xml:"xmlns:u,attr"`
	Id      uint32   `xml:"Id"`
}

type capabilitiesResponse struct {
	XMLName xml.Name
	XmlnsU  string `xml:"xmlns:u,attr"`
	Caps    string `xml:",chardata"`
}

// handleControl returns the SOAP control endpoint handler for one
// service id: parse the envelope, translate it into an actionRequest,
// route by serviceID, write the response or fault.
func (rt *Router) handleControl(serviceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeSOAPFault(w, errActionFailed, "failed to read request")
			return
		}
		var envelope SOAPEnvelope
		if err := xml.Unmarshal(body, &envelope); err != nil {
			log.Error(ctx, "transport: invalid SOAP envelope", err)
			writeSOAPFault(w, errActionFailed, "invalid SOAP envelope")
			return
		}

		ar := actionRequest{
			Action:    extractActionName(strings.Trim(req.Header.Get("SOAPAction"), `"`)),
			ServiceID: serviceID,
			UDN:       chi.URLParam(req, "udn"),
			Body:      envelope.Body.Content,
		}

		if ar.UDN != rt.udn {
			log.Warn(ctx, "transport: UDN mismatch", "got", ar.UDN, "want", rt.udn)
			writeSOAPFault(w, errBadRequest, "unknown device UDN")
			return
		}

		resp, err := rt.dispatch(ctx, ar)
		if err != nil {
			code := errActionFailed
			var cdsErr *model.CDSError
			if asCDSError(err, &cdsErr) {
				code = int(cdsErr.Code)
			}
			writeSOAPFault(w, code, err.Error())
			return
		}

		writeSOAPResponse(w, resp)
	}
}

func asCDSError(err error, target **model.CDSError) bool {
	ce, ok := err.(*model.CDSError)
	if ok {
		*target = ce
	}
	return ok
}

// dispatch routes an actionRequest to the CDS or MR Registrar service
// based on its service id, unmarshalling arguments and marshalling the
// typed response (spec §4.8 "routes to C6 or C7 based on service id").
func (rt *Router) dispatch(ctx context.Context, ar actionRequest) (interface{}, error) {
	switch ar.ServiceID {
	case serviceIDContentDirectory:
		return rt.dispatchCDS(ctx, ar)
	case serviceIDConnectionManager:
		return rt.dispatchConnectionManager(ar)
	case serviceIDMRRegistrar:
		return rt.dispatchMRRegistrar(ar)
	default:
		return nil, model.InvalidArgs("unknown service id %q", ar.ServiceID)
	}
}

func (rt *Router) dispatchCDS(ctx context.Context, ar actionRequest) (interface{}, error) {
	switch ar.Action {
	case "Browse":
		var args browseActionArgs
		if err := xml.Unmarshal(ar.Body, &args); err != nil {
			return nil, model.InvalidArgs("malformed Browse arguments: %v", err)
		}
		objID, err := strconv.ParseInt(args.ObjectID, 10, 64)
		if err != nil {
			return nil, model.InvalidArgs("malformed ObjectID %q", args.ObjectID)
		}
		res, err := rt.cds.Browse(ctx, cds.BrowseRequest{
			ObjectID:       objID,
			BrowseFlag:     args.BrowseFlag,
			StartingIndex:  args.StartingIndex,
			RequestedCount: args.RequestedCount,
			SortCriteria:   args.SortCriteria,
		})
		if err != nil {
			return nil, err
		}
		return browseResponse{
			XmlnsU:         contentDirectoryType,
			Result:         res.Result,
			NumberReturned: res.NumberReturned,
			TotalMatches:   res.TotalMatches,
			UpdateID:       res.UpdateID,
		}, nil
	case "GetSearchCapabilities":
		return capabilitiesResponse{XMLName: xml.Name{Local: "u:GetSearchCapabilitiesResponse"}, XmlnsU: contentDirectoryType, Caps: rt.cds.GetSearchCapabilities()}, nil
	case "GetSortCapabilities":
		return capabilitiesResponse{XMLName: xml.Name{Local: "u:GetSortCapabilitiesResponse"}, XmlnsU: contentDirectoryType, Caps: rt.cds.GetSortCapabilities()}, nil
	case "GetSystemUpdateID":
		return getSystemUpdateIDResponse{XmlnsU: contentDirectoryType, Id: rt.cds.GetSystemUpdateID()}, nil
	case "Search":
		return nil, model.InvalidArgs("Search is not supported")
	default:
		return nil, &model.CDSError{Code: errInvalidAction, Message: fmt.Sprintf("unknown action %q", ar.Action)}
	}
}

// dispatchConnectionManager implements the stubbed ConnectionManager
// service (spec §6 "stubbed, returns empty protocolInfo lists").
func (rt *Router) dispatchConnectionManager(ar actionRequest) (interface{}, error) {
	switch ar.Action {
	case "GetProtocolInfo":
		return getProtocolInfoResponse{XmlnsU: connectionManagerType}, nil
	case "GetCurrentConnectionIDs":
		return capabilitiesResponse{XMLName: xml.Name{Local: "u:GetCurrentConnectionIDsResponse"}, XmlnsU: connectionManagerType, Caps: "0"}, nil
	default:
		return nil, &model.CDSError{Code: errInvalidAction, Message: fmt.Sprintf("unknown action %q", ar.Action)}
	}
}

func (rt *Router) dispatchMRRegistrar(ar actionRequest) (interface{}, error) {
	switch ar.Action {
	case "IsAuthorized":
		var args isAuthorizedArgs
		xml.Unmarshal(ar.Body, &args)
		return isAuthorizedResponse{XmlnsU: mrRegistrarType, Result: rt.mrreg.IsAuthorized(args.DeviceID)}, nil
	case "IsValidated":
		var args isAuthorizedArgs
		xml.Unmarshal(ar.Body, &args)
		return isValidatedResponse{XmlnsU: mrRegistrarType, Result: rt.mrreg.IsValidated(args.DeviceID)}, nil
	case "RegisterDevice":
		var args registerDeviceArgs
		xml.Unmarshal(ar.Body, &args)
		resp, err := rt.mrreg.RegisterDevice(args.RegistrationReqMsg)
		if err != nil {
			return nil, model.ActionFailed(err)
		}
		return registerDeviceResponse{XmlnsU: mrRegistrarType, RegistrationRespMsg: resp}, nil
	default:
		return nil, &model.CDSError{Code: errInvalidAction, Message: fmt.Sprintf("unknown action %q", ar.Action)}
	}
}

func writeSOAPResponse(w http.ResponseWriter, result interface{}) {
	body, err := xml.Marshal(result)
	if err != nil {
		writeSOAPFault(w, errActionFailed, "failed to marshal response")
		return
	}
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>%s</s:Body>
</s:Envelope>`, string(body))

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Ext", "")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(envelope))
}

func writeSOAPFault(w http.ResponseWriter, code int, message string) {
	fault := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail>
<UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
<errorCode>%d</errorCode>
<errorDescription>%s</errorDescription>
</UPnPError>
</detail>
</s:Fault>
</s:Body>
</s:Envelope>`, code, message)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(fault))
}

// extractActionName pulls the bare action name off a SOAPAction header
// of the form "urn:schemas-upnp-org:service:ContentDirectory:1#Browse".
func extractActionName(soapAction string) string {
	if idx := strings.LastIndex(soapAction, "#"); idx >= 0 {
		return soapAction[idx+1:]
	}
	return soapAction
}
