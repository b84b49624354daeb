package events

import (
	"fmt"
	"strconv"
	"strings"
)

// EventHandlerConfig returns the raw config table for one event handler,
// for example Alarm or MotionDetect.
func (c *Client) EventHandlerConfig(handlerName string) (string, error) {
	return c.command("configManager.cgi?action=getConfig&name=" + handlerName)
}

func (c *Client) AlarmConfig() (string, error) {
	return c.EventHandlerConfig("Alarm")
}

func (c *Client) AlarmOutConfig() (string, error) {
	return c.EventHandlerConfig("AlarmOut")
}

func (c *Client) VideoBlindDetectConfig() (string, error) {
	return c.EventHandlerConfig("BlindDetect")
}

func (c *Client) VideoLossDetectConfig() (string, error) {
	return c.EventHandlerConfig("LossDetect")
}

func (c *Client) LoginFailureAlarmConfig() (string, error) {
	return c.EventHandlerConfig("LoginFailureAlarm")
}

func (c *Client) StorageNotExistConfig() (string, error) {
	return c.EventHandlerConfig("StorageNotExist")
}

func (c *Client) StorageFailureConfig() (string, error) {
	return c.EventHandlerConfig("StorageFailure")
}

func (c *Client) StorageLowSpaceConfig() (string, error) {
	return c.EventHandlerConfig("StorageLowSpace")
}

func (c *Client) NetAbortConfig() (string, error) {
	return c.EventHandlerConfig("NetAbort")
}

func (c *Client) IPConflictConfig() (string, error) {
	return c.EventHandlerConfig("IPConflict")
}

func (c *Client) AlarmInputChannels() (string, error) {
	return c.command("alarm.cgi?action=getInSlots")
}

func (c *Client) AlarmOutputChannels() (string, error) {
	return c.command("alarm.cgi?action=getOutSlots")
}

func (c *Client) AlarmInputStates() (string, error) {
	return c.command("alarm.cgi?action=getInState")
}

func (c *Client) AlarmOutputStates() (string, error) {
	return c.command("alarm.cgi?action=getOutState")
}

// EventManagement returns the event capability table of the camera.
func (c *Client) EventManagement() (string, error) {
	return c.command("eventManager.cgi?action=getCaps")
}

// EventChannelsHappened returns the channel indexes on which the given
// event code is currently active. Firmware answers with an Error body
// when the code never fired, that is reported as no channels.
func (c *Client) EventChannelsHappened(eventCode string) ([]int, error) {
	output, err := c.command("eventManager.cgi?action=getEventIndexes&code=" + eventCode)
	if err != nil {
		return nil, err
	}
	if strings.Contains(output, "Error") {
		return nil, nil
	}
	var channels []int
	for _, row := range strings.Fields(output) {
		index, err := strconv.Atoi(tableValue(row))
		if err != nil {
			continue
		}
		channels = append(channels, index)
	}
	return channels, nil
}

// MotionDetected returns the channels with an active motion event.
func (c *Client) MotionDetected() ([]int, error) {
	return c.EventChannelsHappened(CodeVideoMotion)
}

// AlarmTriggered returns the channels with an active local alarm.
func (c *Client) AlarmTriggered() ([]int, error) {
	return c.EventChannelsHappened(CodeAlarmLocal)
}

// MotionDetectionConfig returns the raw MotionDetect config table.
func (c *Client) MotionDetectionConfig() (string, error) {
	return c.EventHandlerConfig("MotionDetect")
}

// MotionDetectorEnabled reports whether motion detection is on for the
// given channel.
func (c *Client) MotionDetectorEnabled(channel int) (bool, error) {
	return c.motionFlag(channel, ".Enable=")
}

// MotionRecordingEnabled reports whether recording on motion detection
// is on for the given channel.
func (c *Client) MotionRecordingEnabled(channel int) (bool, error) {
	return c.motionFlag(channel, ".RecordEnable=")
}

func (c *Client) motionFlag(channel int, fieldSuffix string) (bool, error) {
	config, err := c.MotionDetectionConfig()
	if err != nil {
		return false, err
	}
	var flags []string
	for _, row := range strings.Fields(config) {
		if strings.Contains(row, fieldSuffix) {
			flags = append(flags, tableValue(row))
		}
	}
	if channel < 0 || channel >= len(flags) {
		return false, fmt.Errorf("no channel %d in MotionDetect config", channel)
	}
	return parseBool(flags[channel]), nil
}

// SetMotionDetection switches motion detection on or off for a channel.
// Returns true when firmware acknowledged the change.
func (c *Client) SetMotionDetection(enabled bool, channel int) (bool, error) {
	path := fmt.Sprintf("configManager.cgi?action=setConfig&MotionDetect[%d].Enable=%t", channel, enabled)
	output, err := c.command(path)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(output), "ok"), nil
}

// SetMotionRecording switches recording on motion detection on or off
// for a channel.
func (c *Client) SetMotionRecording(enabled bool, channel int) (bool, error) {
	path := fmt.Sprintf("configManager.cgi?action=setConfig&MotionDetect[%d].EventHandler.RecordEnable=%t", channel, enabled)
	output, err := c.command(path)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(output), "ok"), nil
}
