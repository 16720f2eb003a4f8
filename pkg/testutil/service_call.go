package testutil

import "time"

// ServiceCall records one service call made against the mock server.
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// FilterServiceCalls keeps the calls matching domain and service.
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	var filtered []ServiceCall
	for _, call := range calls {
		if call.Domain == domain && call.Service == service {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// FindServiceCallWithData returns the most recent call matching domain and
// service whose data carries the given key/value, nil if none.
func FindServiceCallWithData(calls []ServiceCall, domain, service, dataKey string, dataValue interface{}) *ServiceCall {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Domain == domain && call.Service == service {
			if val, ok := call.ServiceData[dataKey]; ok && val == dataValue {
				return &call
			}
		}
	}
	return nil
}

// Notifications returns the recorded notify service calls, oldest first.
func Notifications(calls []ServiceCall) []ServiceCall {
	var notes []ServiceCall
	for _, call := range calls {
		if call.Domain == "notify" {
			notes = append(notes, call)
		}
	}
	return notes
}
