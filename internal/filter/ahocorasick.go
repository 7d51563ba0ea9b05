package filter

// matcher is a minimal Aho-Corasick automaton over byte strings, used to
// test a name or path against a set of plain substrings in a single pass
// instead of one strings.Contains per pattern. Grounded on spec.md §4.1's
// requirement that the substring-exclude layer run as "a single
// multi-pattern pass", generalized from scratch since no complete example
// repo in the pack imports an Aho-Corasick library (closest inspiration:
// the trie-building style in other_examples' string-matching helpers).
type matcher struct {
	trie []node
}

type node struct {
	children map[byte]int
	fail     int
	terminal bool
}

func newNode() node {
	return node{children: make(map[byte]int)}
}

// buildMatcher compiles a set of plain substrings into an automaton. An
// empty pattern set yields a matcher that never matches.
func buildMatcher(patterns []string) *matcher {
	m := &matcher{trie: []node{newNode()}}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		cur := 0
		for i := 0; i < len(p); i++ {
			b := p[i]
			next, ok := m.trie[cur].children[b]
			if !ok {
				m.trie = append(m.trie, newNode())
				next = len(m.trie) - 1
				m.trie[cur].children[b] = next
			}
			cur = next
		}
		m.trie[cur].terminal = true
	}
	m.buildFailureLinks()
	return m
}

func (m *matcher) buildFailureLinks() {
	queue := make([]int, 0, len(m.trie))
	for b, child := range m.trie[0].children {
		m.trie[child].fail = 0
		queue = append(queue, child)
		_ = b
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for b, child := range m.trie[cur].children {
			fail := m.trie[cur].fail
			for {
				if next, ok := m.trie[fail].children[b]; ok && next != child {
					m.trie[child].fail = next
					break
				}
				if fail == 0 {
					m.trie[child].fail = 0
					break
				}
				fail = m.trie[fail].fail
			}
			if m.trie[m.trie[child].fail].terminal {
				m.trie[child].terminal = m.trie[child].terminal || true
			}
			queue = append(queue, child)
		}
	}
}

// MatchAny reports whether any compiled pattern occurs anywhere in s.
func (m *matcher) MatchAny(s string) bool {
	if len(m.trie) <= 1 {
		return false
	}
	cur := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		for {
			if next, ok := m.trie[cur].children[b]; ok {
				cur = next
				break
			}
			if cur == 0 {
				break
			}
			cur = m.trie[cur].fail
		}
		if m.trie[cur].terminal {
			return true
		}
	}
	return false
}
