// Package events implements the event subsystem of the Dahua/Amcrest
// HTTP/CGI camera API: configuration queries, channel state queries and
// the long-lived eventManager attach stream that pushes notifications
// (motion detection, alarms, storage faults) to the client.
package events

// Event codes accepted by eventManager.cgi. Firmware accepts any code
// string, these are the ones documented across Dahua and Amcrest models.
const (
	CodeVideoMotion     = "VideoMotion"
	CodeVideoLoss       = "VideoLoss"
	CodeVideoBlind      = "VideoBlind"
	CodeAlarmLocal      = "AlarmLocal"
	CodeAlarmOutput     = "AlarmOutput"
	CodeStorageNotExist = "StorageNotExist"
	CodeStorageFailure  = "StorageFailure"
	CodeStorageLowSpace = "StorageLowSpace"
)

// Event is one decoded notification from the camera event feed.
// Values holds every key=value pair of the payload, including Code.
// Data holds the nested object the firmware emits under the data key,
// flattened to string pairs.
type Event struct {
	Code   string
	Values map[string]string
	Data   map[string]string
}

// Action returns the payload action field, typically Start or Stop.
func (e *Event) Action() string {
	return e.Values["action"]
}

// Index returns the payload index field, the channel the event fired on.
func (e *Event) Index() string {
	return e.Values["index"]
}
