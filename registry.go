package topicbus

import (
	"sync"

	"github.com/coregx/topicbus/model"
)

// TopicRegistry is the in-memory directory of topics and their
// subscriptions, indexed by topic name and by (topic, principal).
//
// All mutations take a registry-scoped lock held only for the pointer and
// index updates, never across I/O, so request-serving readers can never
// observe a half-renamed topic.
type TopicRegistry struct {
	mu sync.RWMutex

	// topics maps topic_name -> Topic.
	topics map[string]*model.Topic

	// subsByTopic maps topic_name -> username -> Subscription. At most one
	// subscription per (topic, principal) pair.
	subsByTopic map[string]map[string]*model.Subscription
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics:      make(map[string]*model.Topic),
		subsByTopic: make(map[string]map[string]*model.Subscription),
	}
}

// AddTopic inserts or replaces a topic under its name.
func (r *TopicRegistry) AddTopic(name string, topic *model.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[name] = topic
}

// HasTopic checks whether a topic exists.
func (r *TopicRegistry) HasTopic(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[name]
	return ok
}

// GetTopic returns the topic registered under name, or (nil, false).
func (r *TopicRegistry) GetTopic(name string) (*model.Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.topics[name]
	return topic, ok
}

// TopicCount returns the number of registered topics.
func (r *TopicRegistry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// DeleteTopic removes a topic and its subscription index, returning the
// removed subscriptions. Unknown topics yield (nil, false).
func (r *TopicRegistry) DeleteTopic(name string) ([]*model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[name]; !ok {
		return nil, false
	}
	var removed []*model.Subscription
	for _, sub := range r.subsByTopic[name] {
		removed = append(removed, sub)
	}
	delete(r.topics, name)
	delete(r.subsByTopic, name)
	return removed, true
}

// AddSubscription indexes a subscription under its topic and principal,
// replacing any previous subscription of the same principal on that topic.
func (r *TopicRegistry) AddSubscription(sub *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser, ok := r.subsByTopic[sub.TopicName]
	if !ok {
		byUser = make(map[string]*model.Subscription)
		r.subsByTopic[sub.TopicName] = byUser
	}
	byUser[sub.Username] = sub
}

// RemoveSubscription removes the principal's subscription on a topic,
// dropping the topic's subscription index entirely when it becomes empty.
// Returns the removed subscription, or (nil, false) when nothing matched.
func (r *TopicRegistry) RemoveSubscription(topicName, username string) (*model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser, ok := r.subsByTopic[topicName]
	if !ok {
		return nil, false
	}
	sub, ok := byUser[username]
	if !ok {
		return nil, false
	}
	delete(byUser, username)
	if len(byUser) == 0 {
		delete(r.subsByTopic, topicName)
	}
	return sub, true
}

// SubscriptionsForTopic returns a snapshot of the topic's subscriptions.
func (r *TopicRegistry) SubscriptionsForTopic(topicName string) []*model.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := r.subsByTopic[topicName]
	subs := make([]*model.Subscription, 0, len(byUser))
	for _, sub := range byUser {
		subs = append(subs, sub)
	}
	return subs
}

// FindSubKey returns the sub_key the principal uses for the given topic,
// or ("", false) when there is none.
func (r *TopicRegistry) FindSubKey(username, topicName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sub, ok := r.subsByTopic[topicName][username]; ok {
		return sub.SubKey, true
	}
	return "", false
}

// FindSubKeyAnyTopic searches every topic for a subscription owned by the
// principal, returning the first (topic, sub_key) found or ("", "", false).
func (r *TopicRegistry) FindSubKeyAnyTopic(username string) (topicName, subKey string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, byUser := range r.subsByTopic {
		if sub, found := byUser[username]; found {
			return name, sub.SubKey, true
		}
	}
	return "", "", false
}

// TopicsForSubKey returns the names of every topic holding a subscription
// with the given sub_key and owning principal.
func (r *TopicRegistry) TopicsForSubKey(username, subKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, byUser := range r.subsByTopic {
		if sub, ok := byUser[username]; ok && sub.SubKey == subKey {
			names = append(names, name)
		}
	}
	return names
}

// Rename atomically moves a topic and its subscription index to a new
// name. Every subscription object is updated in place, so external holders
// of a reference observe the new TopicName. The old key is removed even
// when the topic had no subscriptions.
//
// A missing old topic is a deliberate no-op, not an error: the rename may
// arrive after a compensating delete. Returns the renamed subscriptions and
// whether the topic existed.
func (r *TopicRegistry) Rename(oldName, newName string) ([]*model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[oldName]
	if !ok {
		return nil, false
	}

	topic.Name = newName
	delete(r.topics, oldName)
	r.topics[newName] = topic

	byUser, hadSubs := r.subsByTopic[oldName]
	delete(r.subsByTopic, oldName)

	var renamed []*model.Subscription
	if hadSubs {
		for _, sub := range byUser {
			sub.TopicName = newName
			renamed = append(renamed, sub)
		}
		r.subsByTopic[newName] = byUser
	}
	return renamed, true
}
