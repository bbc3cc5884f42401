// Package shadowmqtt adapts the MQTT transport to the shadow engine's
// Connection interface.
//
// One Conn serves every thing: Subscribe attaches a thing's shadow topics
// and returns the single ordered event stream its session consumes.
// Payloads are JSON envelopes carrying a clientToken for correlation and a
// {reported, desired} state pair:
//
//	{"clientToken":"...","state":{"desired":{"valve":"open"}}}
//
// Topic-to-event mapping:
//
//	shadow/get/accepted        EventResponse (snapshot answer)
//	shadow/get/rejected        EventResponse with Err
//	shadow/update/accepted     EventResponse (mutation acknowledgment)
//	shadow/update/rejected     EventResponse with Err
//	shadow/update/delta        EventDiagnostic
//	shadow/update/documents    EventForeignChange (full document, any actor)
//
// Transport lifecycle transitions fan out to every attached stream as
// EventLifecycle. Reconnects additionally invoke the OnReconnect callback
// so the owner can resynchronize devices.
package shadowmqtt
