package mqtt

import "fmt"

// Topic roots for the Shadow Core topic hierarchy.
const (
	// TopicPrefixThings is the base for all per-thing shadow topics.
	// Scheme: things/{thingID}/shadow/{operation}
	TopicPrefixThings = "things"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "shadowcore/system"
)

// Topics provides builders for shadow topics. Using these helpers keeps
// topic naming consistent between the publisher and subscriber sides.
//
//	topics := mqtt.Topics{}
//	topics.ShadowUpdate("tap-kitchen")
//	// Returns: "things/tap-kitchen/shadow/update"
type Topics struct{}

// ShadowGet returns the topic for requesting a thing's current shadow.
func (Topics) ShadowGet(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/get", TopicPrefixThings, thingID)
}

// ShadowGetAccepted returns the topic carrying snapshot responses.
func (Topics) ShadowGetAccepted(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/get/accepted", TopicPrefixThings, thingID)
}

// ShadowGetRejected returns the topic carrying snapshot rejections.
func (Topics) ShadowGetRejected(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/get/rejected", TopicPrefixThings, thingID)
}

// ShadowUpdate returns the topic for publishing desired-state updates.
func (Topics) ShadowUpdate(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/update", TopicPrefixThings, thingID)
}

// ShadowUpdateAccepted returns the topic carrying update acknowledgments.
func (Topics) ShadowUpdateAccepted(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/accepted", TopicPrefixThings, thingID)
}

// ShadowUpdateRejected returns the topic carrying update rejections.
func (Topics) ShadowUpdateRejected(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/rejected", TopicPrefixThings, thingID)
}

// ShadowUpdateDelta returns the topic noting desired/reported divergence.
func (Topics) ShadowUpdateDelta(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/delta", TopicPrefixThings, thingID)
}

// ShadowUpdateDocuments returns the topic carrying the full shadow
// document published after any change, by any actor.
func (Topics) ShadowUpdateDocuments(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/documents", TopicPrefixThings, thingID)
}

// SystemStatus returns the service online/offline status topic, also used
// for the Last Will and Testament.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllShadowResponses returns a pattern matching every response topic of
// one thing's shadow. Useful for diagnostics.
//
// Pattern: things/{thingID}/shadow/+/+
func (Topics) AllShadowResponses(thingID string) string {
	return fmt.Sprintf("%s/%s/shadow/+/+", TopicPrefixThings, thingID)
}
