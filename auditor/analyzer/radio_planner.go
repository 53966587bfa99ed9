package analyzer

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/types"
)

// RadioPlanner analyzes channel assignments and proposes less crowded ones.
// Proposals are advisory output; nothing is pushed back to the controller.
type RadioPlanner struct {
	log logrus.FieldLogger
}

// NewRadioPlanner creates a radio planner
func NewRadioPlanner(log logrus.FieldLogger) *RadioPlanner {
	return &RadioPlanner{log: log.WithField("component", "radio-planner")}
}

// ChannelProposal suggests moving one radio to another channel
type ChannelProposal struct {
	APMAC           string `json:"ap_mac"`
	APName          string `json:"ap_name"`
	Band            string `json:"band"`
	CurrentChannel  int    `json:"current_channel"`
	ProposedChannel int    `json:"proposed_channel"`
	Reason          string `json:"reason"`
}

// RadioPlan is the channel audit for a site
type RadioPlan struct {
	Channel24Usage map[int]int       `json:"channel_24_usage"`
	Proposals      []ChannelProposal `json:"proposals"`
	Hints          []string          `json:"hints,omitempty"`
}

// The 2.4 GHz band only has three non-overlapping channels
var nonOverlapping24 = []int{1, 6, 11}

// Plan audits 2.4 GHz channel assignments across the AP inventory
func (rp *RadioPlanner) Plan(devices []types.Device) *RadioPlan {
	// Deterministic order regardless of inventory order
	aps := make([]types.Device, 0, len(devices))
	for _, d := range devices {
		if d.IsAP() {
			aps = append(aps, d)
		}
	}
	sort.Slice(aps, func(i, j int) bool { return aps[i].MAC < aps[j].MAC })

	observed := make(map[int]int)
	for _, ap := range aps {
		for _, radio := range ap.Radios {
			if radio.Band == "ng" && radio.Channel > 0 {
				observed[radio.Channel]++
			}
		}
	}

	// Rebalancing works on a copy so the plan reports what was actually seen
	usage := make(map[int]int, len(observed))
	for ch, n := range observed {
		usage[ch] = n
	}

	plan := &RadioPlan{Channel24Usage: observed}

	for _, ap := range aps {
		for _, radio := range ap.Radios {
			if radio.Band != "ng" || radio.Channel <= 0 {
				continue
			}
			if !isNonOverlapping24(radio.Channel) {
				target := rp.leastUsed(usage)
				plan.Proposals = append(plan.Proposals, ChannelProposal{
					APMAC:           ap.MAC,
					APName:          ap.DisplayName(),
					Band:            radio.Band,
					CurrentChannel:  radio.Channel,
					ProposedChannel: target,
					Reason: fmt.Sprintf(
						"channel %d overlaps its neighbors; %d is the least used non-overlapping channel",
						radio.Channel, target),
				})
				continue
			}
			// On 1/6/11 but markedly more crowded than the best alternative
			target := rp.leastUsed(usage)
			if target != radio.Channel && usage[radio.Channel]-usage[target] >= 2 {
				plan.Proposals = append(plan.Proposals, ChannelProposal{
					APMAC:           ap.MAC,
					APName:          ap.DisplayName(),
					Band:            radio.Band,
					CurrentChannel:  radio.Channel,
					ProposedChannel: target,
					Reason: fmt.Sprintf(
						"%d APs share channel %d while channel %d has %d",
						usage[radio.Channel], radio.Channel, target, usage[target]),
				})
				// Treat the move as applied so later proposals don't all pile
				// onto the same target
				usage[radio.Channel]--
				usage[target]++
			}
		}
	}

	total24 := 0
	for _, n := range usage {
		total24 += n
	}
	if total24 > len(nonOverlapping24)*2 {
		plan.Hints = append(plan.Hints,
			fmt.Sprintf("%d radios compete for three usable 2.4 GHz channels; prefer band steering to 5 GHz", total24))
	}

	rp.log.WithFields(logrus.Fields{
		"aps":       len(aps),
		"proposals": len(plan.Proposals),
	}).Info("Radio plan computed")

	return plan
}

func (rp *RadioPlanner) leastUsed(usage map[int]int) int {
	best := nonOverlapping24[0]
	for _, ch := range nonOverlapping24[1:] {
		if usage[ch] < usage[best] {
			best = ch
		}
	}
	return best
}

func isNonOverlapping24(channel int) bool {
	for _, ch := range nonOverlapping24 {
		if ch == channel {
			return true
		}
	}
	return false
}
