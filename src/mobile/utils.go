package mobile

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// NewDeviceID returns a random device identifier the application can persist
// and pass back in MobileConfig.DeviceID.
func NewDeviceID() string {
	return uuid.New().String()
}

func splitList(s string) []string {
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
