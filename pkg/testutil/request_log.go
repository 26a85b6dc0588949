package testutil

import (
	"time"

	"whsync/internal/capability"
)

// ReceivedRequest records a request received by the mock bridge
type ReceivedRequest struct {
	Timestamp    time.Time
	Type         string
	Capabilities map[capability.DataType]bool
	Overrides    map[capability.DataType]*float64
	Trigger      *capability.EventTrigger
}

// FilterRequests filters received requests by type
func FilterRequests(requests []ReceivedRequest, requestType string) []ReceivedRequest {
	var filtered []ReceivedRequest
	for _, req := range requests {
		if req.Type == requestType {
			filtered = append(filtered, req)
		}
	}
	return filtered
}

// LastRequest returns the most recent request of a type, or nil
func LastRequest(requests []ReceivedRequest, requestType string) *ReceivedRequest {
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].Type == requestType {
			req := requests[i]
			return &req
		}
	}
	return nil
}

// FindCapabilityWrite finds the last set_capabilities request that wrote dataType
func FindCapabilityWrite(requests []ReceivedRequest, dataType capability.DataType) *ReceivedRequest {
	for i := len(requests) - 1; i >= 0; i-- {
		req := requests[i]
		if _, ok := req.Capabilities[dataType]; ok {
			return &req
		}
	}
	return nil
}
