package models

import "devicegate/internal/kv"

// Auth log outcome messages, one per authentication result.
const (
	AuthMsgUserNotFound  = "403: User not found"
	AuthMsgRegistered    = "200: Register a device ID"
	AuthMsgAuthenticated = "200: Authentication request"
	AuthMsgMismatch      = "401: Authentication failure"
	AuthMsgInternalError = "500: Internal server error"
)

// AuthLogEntry records one authentication attempt. Append-only.
type AuthLogEntry struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
	Success   bool   `json:"success"`
	IP        string `json:"ip"`
}

func (e *AuthLogEntry) ToItem() kv.Item {
	return kv.Item{
		AttrUserID:    e.UserID,
		AttrMessage:   e.Message,
		AttrTimestamp: e.Timestamp,
		AttrDeviceID:  e.DeviceID,
		AttrSuccess:   e.Success,
		AttrIP:        e.IP,
	}
}

func AuthLogEntryFromItem(it kv.Item) *AuthLogEntry {
	return &AuthLogEntry{
		UserID:    it.String(AttrUserID),
		Message:   it.String(AttrMessage),
		Timestamp: it.String(AttrTimestamp),
		DeviceID:  it.String(AttrDeviceID),
		Success:   it.Bool(AttrSuccess),
		IP:        it.String(AttrIP),
	}
}

// ActivityLogEntry records one free-form client event. Append-only.
type ActivityLogEntry struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	IP        string `json:"ip"`
}

func (e *ActivityLogEntry) ToItem() kv.Item {
	return kv.Item{
		AttrUserID:    e.UserID,
		AttrMessage:   e.Message,
		AttrTimestamp: e.Timestamp,
		AttrIP:        e.IP,
	}
}
