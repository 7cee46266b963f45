package records

import (
	"time"

	"voicedesk/app/service/session"

	"github.com/elliotchance/pie/v2"
)

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type UserSummary struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Conversations int        `json:"conversations"`
	LastCall      *time.Time `json:"last_call,omitempty"`
}

type Report struct {
	Topics []TopicCount  `json:"topics"`
	Users  []UserSummary `json:"users"`
}

// BuildReport counts topics over every past conversation, ignoring case,
// most frequent first. Users are listed by email.
func BuildReport(users []*User) Report {
	counts := make(map[string]int)

	summaries := make([]UserSummary, 0, len(users))

	for _, user := range users {
		summary := UserSummary{
			Name:          user.FullName(),
			Email:         user.Email,
			Conversations: len(user.PastConversations),
		}

		if last, ok := user.LastConversation(); ok {
			summary.LastCall = &last.Timestamp
		}

		for _, conversation := range user.PastConversations {
			for _, topic := range conversation.Topics {
				if key := session.Normalize(topic); key != "" {
					counts[key]++
				}
			}
		}

		summaries = append(summaries, summary)
	}

	topics := pie.Map(pie.Keys(counts), func(topic string) TopicCount {
		return TopicCount{Topic: topic, Count: counts[topic]}
	})

	return Report{
		Topics: pie.SortUsing(topics, func(a, b TopicCount) bool {
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.Topic < b.Topic
		}),
		Users: pie.SortUsing(summaries, func(a, b UserSummary) bool {
			return a.Email < b.Email
		}),
	}
}
