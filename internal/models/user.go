package models

import "devicegate/internal/kv"

// Attribute names shared by the stores.
const (
	AttrUserID    = "userId"
	AttrDeviceID  = "deviceId"
	AttrTimestamp = "timestamp"
	AttrMessage   = "message"
	AttrSuccess   = "success"
	AttrIP        = "ip"
)

// DeviceIDLength is the only accepted length for a device identifier
// (UUID string form).
const DeviceIDLength = 36

// User is a registered user record. DeviceID is empty until the first
// successful authentication binds a device.
type User struct {
	UserID    string `json:"userId"`
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"` // unix seconds, as stored
}

// Bound reports whether a device has been bound to this user.
func (u *User) Bound() bool {
	return u.DeviceID != ""
}

func (u *User) ToItem() kv.Item {
	return kv.Item{
		AttrUserID:    u.UserID,
		AttrDeviceID:  u.DeviceID,
		AttrTimestamp: u.Timestamp,
	}
}

func UserFromItem(it kv.Item) *User {
	return &User{
		UserID:    it.String(AttrUserID),
		DeviceID:  it.String(AttrDeviceID),
		Timestamp: it.String(AttrTimestamp),
	}
}
