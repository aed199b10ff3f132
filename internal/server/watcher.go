package server

import (
	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// ReadyMarker is logged by the server once it accepts requests.
const ReadyMarker = "SonarQube is up"

// fatalPatterns are startup failures the local server never recovers from.
var fatalPatterns = []string{
	"app[][o.s.a.SchedulerImpl] SonarQube is stopped",
	"错误: 找不到或无法加载主类 org.sonar.application.App",
	"sudo: pam_open_session: Permission denied",
	"sudo: pam_open_session：拒绝权限",
	"java.lang.IllegalStateException: SonarQube requires Java 11 to run",
	"sudo: sorry, you must have a tty to run sudo",
	"sudo：抱歉，您必须拥有一个终端来执行 sudo",
	"org.elasticsearch.cluster.block.ClusterBlockException: blocked by: [FORBIDDEN/12/index read-only / allow delete (api)];",
	"sudoers.so must be only be writable by owner",
	"fatal error, unable to load plugins",
}

type logEvent int

const (
	eventNone logEvent = iota
	eventFatal
	eventReady
)

// logMatcher classifies server log lines. Fatal patterns win over the
// readiness marker when a line carries both.
type logMatcher struct {
	trie  *ahocorasick.Trie
	fatal map[string]bool
}

func newLogMatcher() *logMatcher {
	fatal := make(map[string]bool, len(fatalPatterns))
	for _, p := range fatalPatterns {
		fatal[p] = true
	}
	trie := ahocorasick.NewTrieBuilder().
		AddStrings(fatalPatterns).
		AddString(ReadyMarker).
		Build()
	return &logMatcher{trie: trie, fatal: fatal}
}

func (m *logMatcher) classify(line string) (logEvent, string) {
	event, matched := eventNone, ""
	for _, match := range m.trie.MatchString(line) {
		s := match.MatchString()
		if m.fatal[s] {
			return eventFatal, s
		}
		event, matched = eventReady, s
	}
	return event, matched
}
