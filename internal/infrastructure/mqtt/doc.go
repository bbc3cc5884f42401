// Package mqtt wraps paho.mqtt.golang for Shadow Core.
//
// It provides connection management with Last Will and Testament, message
// publishing, subscription handling with automatic re-subscription after
// reconnect, and builders for the shadow topic hierarchy.
//
// # Topic scheme
//
// Each thing's shadow lives under things/{thingID}/shadow:
//
//	things/{id}/shadow/get               request the current shadow
//	things/{id}/shadow/get/accepted      snapshot response
//	things/{id}/shadow/get/rejected      snapshot rejection
//	things/{id}/shadow/update            desired-state update request
//	things/{id}/shadow/update/accepted   update acknowledgment
//	things/{id}/shadow/update/rejected   update rejection
//	things/{id}/shadow/update/delta      desired/reported divergence note
//	things/{id}/shadow/update/documents  full document after any change
//
// Requests carry a clientToken field correlating them to their response.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.ShadowGetAccepted("tap-kitchen"), 1, handler)
package mqtt
