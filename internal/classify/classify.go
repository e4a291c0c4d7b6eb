// Package classify derives topic, intent and sentiment signals from
// normalized events.
package classify

import "strings"

// Classification is the derived signal for one event. Empty fields
// mean the rules matched nothing; Confidence is always set.
type Classification struct {
	Topic      string  `json:"topic,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	Sentiment  string  `json:"sentiment,omitempty"`
	Confidence float64 `json:"confidence"`
}

const defaultConfidence = 0.5

type rule struct {
	match  func(key string) bool
	result Classification
}

func contains(subs ...string) func(string) bool {
	return func(key string) bool {
		for _, sub := range subs {
			if strings.Contains(key, sub) {
				return true
			}
		}
		return false
	}
}

// Ordered decision table, evaluated top to bottom; first match wins.
var rules = []rule{
	{contains("click"), Classification{Intent: "engagement", Topic: "conversion", Sentiment: "positive", Confidence: 0.8}},
	{contains("open"), Classification{Intent: "awareness", Topic: "nurture", Sentiment: "neutral", Confidence: 0.6}},
	{contains("reply", "response"), Classification{Intent: "conversation", Topic: "relationship", Sentiment: "positive", Confidence: 0.7}},
	{contains("unsubscribe", "opt_out"), Classification{Intent: "churn", Topic: "retention", Sentiment: "negative", Confidence: 0.9}},
}

// Classify runs the rule table against the event's channel:type key.
// Pure function, no I/O.
func Classify(channel, eventType string) Classification {
	key := strings.ToLower(channel + ":" + eventType)
	for _, r := range rules {
		if r.match(key) {
			return r.result
		}
	}
	return Classification{Confidence: defaultConfidence}
}
