package election

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rawElection mirrors the upstream payload, which is loosely typed: ids
// arrive as strings or numbers, booleans as bools or 0/1, and
// lottery_config is sometimes a JSON-encoded string.
type rawElection struct {
	ID                      flexInt         `json:"id"`
	Title                   string          `json:"title"`
	Status                  string          `json:"status"`
	CreatorUserID           flexString      `json:"creator_user_id"`
	StartDate               string          `json:"start_date"`
	EndDate                 string          `json:"end_date"`
	IsFree                  flexBool        `json:"is_free"`
	IsLotterized            flexBool        `json:"is_lotterized"`
	VideoRequired           flexBool        `json:"video_required"`
	VoteEditingAllowed      flexBool        `json:"vote_editing_allowed"`
	LotteryConfig           json.RawMessage `json:"lottery_config"`
	ProcessingFeePercentage flexFloat       `json:"processing_fee_percentage"`
	PricingType             string          `json:"pricing_type"`
	GeneralParticipationFee flexFloat       `json:"general_participation_fee"`
}

type rawLotteryConfig struct {
	WinnerCount      flexInt    `json:"winner_count"`
	RewardAmount     flexFloat  `json:"reward_amount"`
	RewardType       string     `json:"reward_type"`
	PrizeDescription flexString `json:"prize_description"`
}

// Adapt converts an upstream election payload into a strict Config.
// The election object may sit at the top level or under data/election
// nesting depending on which upstream route produced it.
func Adapt(body []byte) (*Config, error) {
	raw, err := unwrapElection(body)
	if err != nil {
		return nil, err
	}
	var src rawElection
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("decode election payload: %w", err)
	}
	if src.ID == 0 {
		return nil, ErrNotFound
	}
	cfg := &Config{
		ID:                      int(src.ID),
		Title:                   src.Title,
		Status:                  src.Status,
		CreatorUserID:           string(src.CreatorUserID),
		IsFree:                  bool(src.IsFree),
		IsLotterized:            bool(src.IsLotterized),
		VideoRequired:           bool(src.VideoRequired),
		VoteEditingAllowed:      bool(src.VoteEditingAllowed),
		ProcessingFeePercentage: float64(src.ProcessingFeePercentage),
		PricingType:             src.PricingType,
		GeneralParticipationFee: float64(src.GeneralParticipationFee),
	}
	if cfg.StartDate, err = parseDate(src.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if cfg.EndDate, err = parseDate(src.EndDate); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if lottery, err := adaptLotteryConfig(src.LotteryConfig); err != nil {
		return nil, err
	} else if lottery != nil {
		cfg.Lottery = lottery
		cfg.IsLotterized = true
	}
	return cfg, nil
}

func unwrapElection(body []byte) (json.RawMessage, error) {
	var envelope struct {
		Data     json.RawMessage `json:"data"`
		Election json.RawMessage `json:"election"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode election envelope: %w", err)
	}
	if len(envelope.Election) > 0 {
		return envelope.Election, nil
	}
	if len(envelope.Data) > 0 {
		var inner struct {
			Election json.RawMessage `json:"election"`
		}
		if err := json.Unmarshal(envelope.Data, &inner); err == nil && len(inner.Election) > 0 {
			return inner.Election, nil
		}
		return envelope.Data, nil
	}
	return body, nil
}

func adaptLotteryConfig(raw json.RawMessage) (*LotteryConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	// Some upstream rows store the config as a JSON-encoded string.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode lottery_config: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	var src rawLotteryConfig
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("decode lottery_config: %w", err)
	}
	if src.WinnerCount == 0 && src.RewardAmount == 0 && src.RewardType == "" {
		return nil, nil
	}
	return &LotteryConfig{
		WinnerCount:      int(src.WinnerCount),
		RewardAmount:     float64(src.RewardAmount),
		RewardType:       src.RewardType,
		PrizeDescription: string(src.PrizeDescription),
	}, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return err
	}
	*f = flexInt(value)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(value)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.Trim(string(data), `"`))
	return nil
}
