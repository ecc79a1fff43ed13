package audit

import (
	"time"

	"vottery/internal/cryptoutil"
	"vottery/internal/db"
)

// GenesisHash anchors every election's chain; block 1 links to it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one link in an election's hash chain. Blocks are derived, not
// persisted: the chain is recomputed from the ordered valid votes on
// every call, so it can never desync from the ledger.
type Block struct {
	BlockNumber  int       `json:"blockNumber"`
	VotingID     string    `json:"votingId"`
	VoteHash     string    `json:"voteHash"`
	PreviousHash string    `json:"previousHash"`
	BlockHash    string    `json:"blockHash"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"userId"`
}

type Chain struct {
	ElectionID      int     `json:"electionId"`
	TotalBlocks     int     `json:"totalBlocks"`
	Blocks          []Block `json:"blocks"`
	LatestBlockHash string  `json:"latestBlockHash"`
}

// BuildHashChain recomputes the chain over the election's valid votes in
// createdAt order (id breaks ties so repeated builds are byte-identical).
// Altering or reordering any historical vote changes every downstream
// block hash.
func (r *Recorder) BuildHashChain(electionID int) (*Chain, error) {
	var votes []db.Vote
	if err := r.db.
		Select("voting_id", "vote_hash", "created_at", "user_id").
		Where("election_id = ? AND status = ?", electionID, db.VoteStatusValid).
		Order("created_at ASC, id ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}

	chain := &Chain{
		ElectionID:      electionID,
		Blocks:          make([]Block, 0, len(votes)),
		LatestBlockHash: GenesisHash,
	}
	previousHash := GenesisHash
	for i, vote := range votes {
		blockHash := blockHash(previousHash, vote.VoteHash, vote.CreatedAt)
		chain.Blocks = append(chain.Blocks, Block{
			BlockNumber:  i + 1,
			VotingID:     vote.VotingID,
			VoteHash:     vote.VoteHash,
			PreviousHash: previousHash,
			BlockHash:    blockHash,
			Timestamp:    vote.CreatedAt,
			UserID:       MaskUserID(vote.UserID),
		})
		previousHash = blockHash
	}
	chain.TotalBlocks = len(chain.Blocks)
	if chain.TotalBlocks > 0 {
		chain.LatestBlockHash = previousHash
	}
	return chain, nil
}

func blockHash(previousHash, voteHash string, createdAt time.Time) string {
	return cryptoutil.HashData(previousHash + voteHash + createdAt.UTC().Format(time.RFC3339Nano))
}

// MaskUserID keeps the first 8 characters of a user id for public
// surfaces; partial masking only, per the anonymity non-goal.
func MaskUserID(userID string) string {
	if len(userID) <= 8 {
		return userID
	}
	return userID[:8] + "..."
}

// BulletinVote is one anonymized entry on the public bulletin board.
type BulletinVote struct {
	VotingID       string    `json:"votingId"`
	VoteHash       string    `json:"voteHash"`
	Timestamp      time.Time `json:"timestamp"`
	AnonymizedUser string    `json:"anonymizedUser"`
}

type BulletinBoard struct {
	ElectionID       int            `json:"electionId"`
	TotalVotes       int            `json:"totalVotes"`
	Votes            []BulletinVote `json:"votes"`
	Chain            *Chain         `json:"hashChain"`
	VerificationHash string         `json:"verificationHash"`
}

// PublicBulletinBoard returns the transparency view: anonymized votes
// newest first plus the full chain, whose final hash is the election's
// published verification hash.
func (r *Recorder) PublicBulletinBoard(electionID int) (*BulletinBoard, error) {
	chain, err := r.BuildHashChain(electionID)
	if err != nil {
		return nil, err
	}
	var votes []db.Vote
	if err := r.db.
		Select("voting_id", "vote_hash", "created_at", "user_id").
		Where("election_id = ? AND status = ?", electionID, db.VoteStatusValid).
		Order("created_at DESC, id DESC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	board := &BulletinBoard{
		ElectionID:       electionID,
		TotalVotes:       len(votes),
		Votes:            make([]BulletinVote, 0, len(votes)),
		Chain:            chain,
		VerificationHash: chain.LatestBlockHash,
	}
	for _, vote := range votes {
		label := vote.UserID
		if len(label) > 4 {
			label = label[:4]
		}
		board.Votes = append(board.Votes, BulletinVote{
			VotingID:       vote.VotingID,
			VoteHash:       vote.VoteHash,
			Timestamp:      vote.CreatedAt,
			AnonymizedUser: "User-" + label,
		})
	}
	return board, nil
}
