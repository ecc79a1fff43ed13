package cryptoutil

import (
	"fmt"
	"sort"
	"strings"
)

// VoteHash computes the tamper-evidence anchor for a vote: the SHA-256
// digest of a canonical serialization of (user, election, answers,
// timestamp). Option order within an answer is not significant, so the
// serialization sorts both question ids and option ids.
func VoteHash(userID string, electionID int, answers map[string][]int, timestamp string) string {
	return HashData(canonicalVote(userID, electionID, answers, timestamp))
}

// VerifyVoteHash recomputes the hash and compares it to the stored value.
func VerifyVoteHash(userID string, electionID int, answers map[string][]int, timestamp, expected string) bool {
	return VoteHash(userID, electionID, answers, timestamp) == expected
}

func canonicalVote(userID string, electionID int, answers map[string][]int, timestamp string) string {
	questions := make([]string, 0, len(answers))
	for q := range answers {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|", userID, electionID)
	for _, q := range questions {
		options := append([]int(nil), answers[q]...)
		sort.Ints(options)
		fmt.Fprintf(&b, "%s:", q)
		for i, opt := range options {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", opt)
		}
		b.WriteByte(';')
	}
	fmt.Fprintf(&b, "|%s", timestamp)
	return b.String()
}
