package topicbus

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/topicbus/model"
)

// Operation names accepted by PatternMatcher.Evaluate.
const (
	OperationPublish   = "publish"
	OperationSubscribe = "subscribe"
)

// patternInfo is one compiled pattern held for a client.
type patternInfo struct {
	pattern        string // Lowercased glob without operation prefix
	compiled       *regexp.Regexp
	hasWildcards   bool
	wildcardWeight int // Lower weight means a more specific pattern
}

// clientPermissions are the compiled pattern lists of one client, split by
// operation.
type clientPermissions struct {
	clientID    string
	pubPatterns []patternInfo
	subPatterns []patternInfo
}

// PatternMatcher decides whether a principal may publish to or subscribe to
// a topic, and which pattern justified the decision.
//
// Patterns are dotted globs: "*" matches exactly one (possibly empty)
// segment, "**" matches any run of segments. Globs compile to anchored
// regular expressions, so runs of "**" resolve in time linear in the topic
// length. Matching is case-insensitive. Topic names are data, never
// patterns: regex metacharacters in a topic name are matched literally.
//
// Safe for concurrent use. AddClient replaces a client's permission list
// wholesale; concurrent calls for the same client are last-write-wins.
type PatternMatcher struct {
	mu           sync.RWMutex
	clients      map[string]*clientPermissions
	patternCache map[string]*regexp.Regexp
}

// NewPatternMatcher creates an empty matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{
		clients:      make(map[string]*clientPermissions),
		patternCache: make(map[string]*regexp.Regexp),
	}
}

// AddClient registers or wholesale-replaces the permission list of a
// client. Every pattern is validated before anything is stored, so an
// invalid pattern leaves no partial state. Inactive permissions are
// skipped.
//
// Returns a validation error when any pattern is empty, longer than
// model.MaxPatternLength, contains a reserved name or any non-ASCII
// character.
func (m *PatternMatcher) AddClient(clientID string, permissions []model.Permission) error {
	for _, perm := range permissions {
		if !perm.IsActive {
			continue
		}
		if err := model.ValidatePattern(perm.Pattern); err != nil {
			return NewErrorWithCause(ErrCodeValidation, "invalid permission pattern", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := &clientPermissions{clientID: clientID}
	for _, perm := range permissions {
		if !perm.IsActive {
			continue
		}
		isPub, isSub := operationScope(perm)
		info := m.compilePatternInfo(perm.Pattern)
		if isPub {
			cp.pubPatterns = append(cp.pubPatterns, info)
		}
		if isSub {
			cp.subPatterns = append(cp.subPatterns, info)
		}
	}
	sortPatterns(cp.pubPatterns)
	sortPatterns(cp.subPatterns)
	m.clients[clientID] = cp
	return nil
}

// SetPermissions replaces a client's permissions, registering the client if
// it is unknown. It shares AddClient's validation and replace semantics.
func (m *PatternMatcher) SetPermissions(clientID string, permissions []model.Permission) error {
	return m.AddClient(clientID, permissions)
}

// RemoveClient removes a client and all its permissions. Unknown clients
// are a no-op.
func (m *PatternMatcher) RemoveClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
}

// DeleteTopic drops the client's permissions whose literal pattern equals
// the given topic name. Wildcard patterns are untouched. Used when a topic
// is deleted so that exact grants do not dangle.
func (m *PatternMatcher) DeleteTopic(clientID, topicName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.clients[clientID]
	if !ok {
		return
	}
	lower := strings.ToLower(topicName)
	cp.pubPatterns = dropExact(cp.pubPatterns, lower)
	cp.subPatterns = dropExact(cp.subPatterns, lower)
}

// RenameTopic re-keys the client's exact-match permissions from the old
// literal topic name to the new one, so authorization keeps working after a
// topic rename. Wildcard patterns are untouched.
func (m *PatternMatcher) RenameTopic(clientID, oldName, newName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.clients[clientID]
	if !ok {
		return
	}
	oldLower := strings.ToLower(oldName)
	newLower := strings.ToLower(newName)
	renameExact(cp.pubPatterns, oldLower, newLower)
	renameExact(cp.subPatterns, oldLower, newLower)
	sortPatterns(cp.pubPatterns)
	sortPatterns(cp.subPatterns)
}

// DeleteTopicAll drops every client's exact-match permissions for the
// given topic name.
func (m *PatternMatcher) DeleteTopicAll(topicName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lower := strings.ToLower(topicName)
	for _, cp := range m.clients {
		cp.pubPatterns = dropExact(cp.pubPatterns, lower)
		cp.subPatterns = dropExact(cp.subPatterns, lower)
	}
}

// RenameTopicAll re-keys every client's exact-match permissions from the
// old literal topic name to the new one.
func (m *PatternMatcher) RenameTopicAll(oldName, newName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldLower := strings.ToLower(oldName)
	newLower := strings.ToLower(newName)
	for _, cp := range m.clients {
		renameExact(cp.pubPatterns, oldLower, newLower)
		renameExact(cp.subPatterns, oldLower, newLower)
		sortPatterns(cp.pubPatterns)
		sortPatterns(cp.subPatterns)
	}
}

// Evaluate checks whether a client may perform an operation on a topic.
// It never returns an error: an unknown client, unknown operation or
// unmatched topic yields IsOK=false with a Reason.
func (m *PatternMatcher) Evaluate(clientID, topic, operation string) model.EvaluationResult {
	result := model.EvaluationResult{
		ClientID:  clientID,
		Topic:     topic,
		Operation: operation,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.clients[clientID]
	if !ok {
		result.Reason = "Client not found"
		return result
	}

	var patterns []patternInfo
	switch operation {
	case OperationPublish:
		patterns = cp.pubPatterns
	case OperationSubscribe:
		patterns = cp.subPatterns
	default:
		result.Reason = "Invalid operation: " + operation
		return result
	}

	topicLower := strings.ToLower(topic)
	for _, info := range patterns {
		if !info.hasWildcards {
			if topicLower == info.pattern {
				result.IsOK = true
				result.MatchedPattern = info.pattern
				return result
			}
			continue
		}
		if info.compiled.MatchString(topicLower) {
			result.IsOK = true
			result.MatchedPattern = info.pattern
			return result
		}
	}

	result.Reason = "No matching pattern found"
	return result
}

// ClientCount returns the number of registered clients.
func (m *PatternMatcher) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CacheSize returns the number of compiled patterns held in the cache.
func (m *PatternMatcher) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patternCache)
}

// ClearCache drops the compiled-pattern cache and recompiles the patterns
// of every registered client.
func (m *PatternMatcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.patternCache = make(map[string]*regexp.Regexp)
	for _, cp := range m.clients {
		for i := range cp.pubPatterns {
			cp.pubPatterns[i].compiled = m.compileGlob(cp.pubPatterns[i].pattern)
		}
		for i := range cp.subPatterns {
			cp.subPatterns[i].compiled = m.compileGlob(cp.subPatterns[i].pattern)
		}
	}
}

// operationScope resolves the operations a permission grants, combining the
// access type with an optional "pub="/"sub=" pattern prefix. The prefix
// narrows the grant to one operation.
func operationScope(perm model.Permission) (isPub, isSub bool) {
	switch perm.AccessType {
	case model.AccessPublisher:
		isPub = true
	case model.AccessSubscriber:
		isSub = true
	case model.AccessPublisherSubscriber:
		isPub, isSub = true, true
	}
	if strings.HasPrefix(perm.Pattern, "pub=") {
		isSub = false
		isPub = true
	} else if strings.HasPrefix(perm.Pattern, "sub=") {
		isPub = false
		isSub = true
	}
	return isPub, isSub
}

// compilePatternInfo builds the patternInfo for a raw permission pattern.
// Caller holds m.mu.
func (m *PatternMatcher) compilePatternInfo(raw string) patternInfo {
	glob := strings.ToLower(model.StripOperationPrefix(raw))
	return patternInfo{
		pattern:          glob,
		compiled:         m.compileGlob(glob),
		hasWildcards:   strings.Contains(glob, "*"),
		wildcardWeight: wildcardWeight(glob),
	}
}

// compileGlob compiles a lowercased topic glob to an anchored regexp, with
// caching. "**" becomes ".*" and "*" becomes "[^.]*"; everything else is
// quoted so topic segments are matched literally. Caller holds m.mu.
func (m *PatternMatcher) compileGlob(glob string) *regexp.Regexp {
	if compiled, ok := m.patternCache[glob]; ok {
		return compiled
	}

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); {
		switch {
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i += 2
		case glob[i] == '*':
			b.WriteString("[^.]*")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
			i++
		}
	}
	b.WriteString("$")

	compiled := regexp.MustCompile(b.String())
	m.patternCache[glob] = compiled
	return compiled
}

// sortPatterns orders patterns so that the most specific grant wins: exact
// patterns before wildcard ones, then lower wildcard weight first, then
// alphabetically.
func sortPatterns(patterns []patternInfo) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.hasWildcards != b.hasWildcards {
			return !a.hasWildcards
		}
		if a.wildcardWeight != b.wildcardWeight {
			return a.wildcardWeight < b.wildcardWeight
		}
		return a.pattern < b.pattern
	})
}

// wildcardWeight scores a glob by how much of the topic space it can cover.
// A "**" segment spans any number of segments so it weighs more than a "*"
// segment, which is bounded to one. "orders.*" (weight 1) therefore outranks
// "**" (weight 2).
func wildcardWeight(glob string) int {
	weight := 0
	for _, segment := range strings.Split(glob, ".") {
		switch {
		case strings.Contains(segment, "**"):
			weight += 2
		case strings.Contains(segment, "*"):
			weight++
		}
	}
	return weight
}

func dropExact(patterns []patternInfo, topicLower string) []patternInfo {
	kept := patterns[:0]
	for _, info := range patterns {
		if !info.hasWildcards && info.pattern == topicLower {
			continue
		}
		kept = append(kept, info)
	}
	return kept
}

func renameExact(patterns []patternInfo, oldLower, newLower string) {
	for i := range patterns {
		if !patterns[i].hasWildcards && patterns[i].pattern == oldLower {
			patterns[i].pattern = newLower
		}
	}
}
