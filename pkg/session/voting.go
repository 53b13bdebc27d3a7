package session

import "github.com/fugue-ai/rhema-coordinator/pkg/models"

// Resolve determines a Decision's outcome from its vote set
// deterministically given the mechanism: the algorithm is pluggable per
// mechanism but never randomized or externally influenced.
func Resolve(mechanism models.VotingMechanism, votes []models.Vote, quorum int) (models.DecisionOutcome, []string) {
	switch mechanism {
	case models.VotingWeighted:
		return resolveWeighted(votes, quorum)
	case models.VotingConsensusWithVeto:
		return resolveConsensusWithVeto(votes, quorum)
	case models.VotingDelegated:
		return resolveDelegated(votes, quorum)
	default: // models.VotingSimpleMajority and unrecognized mechanisms
		return resolveSimpleMajority(votes, quorum)
	}
}

func tally(votes []models.Vote) (approve, reject, abstain, defer_ int) {
	for _, v := range votes {
		switch v.Value {
		case models.VoteApprove:
			approve++
		case models.VoteReject:
			reject++
		case models.VoteAbstain:
			abstain++
		case models.VoteDefer:
			defer_++
		}
	}
	return
}

func resolveSimpleMajority(votes []models.Vote, quorum int) (models.DecisionOutcome, []string) {
	approve, reject, _, defer_ := tally(votes)
	if len(votes) < quorum {
		return models.OutcomeDeferred, nil
	}
	if defer_ > approve && defer_ > reject {
		return models.OutcomeDeferred, nil
	}
	if approve > reject {
		return models.OutcomeApproved, nil
	}
	if reject > approve {
		return models.OutcomeRejected, nil
	}
	return models.OutcomeEscalated, nil // true tie: requires operator escalation
}

func resolveWeighted(votes []models.Vote, quorum int) (models.DecisionOutcome, []string) {
	if len(votes) < quorum {
		return models.OutcomeDeferred, nil
	}
	var approve, reject, totalWeight float64
	for _, v := range votes {
		w := v.Weight
		if w == 0 {
			w = 1
		}
		totalWeight += w
		switch v.Value {
		case models.VoteApprove:
			approve += w
		case models.VoteReject:
			reject += w
		}
	}
	if totalWeight == 0 {
		return models.OutcomeDeferred, nil
	}
	switch {
	case approve > totalWeight/2:
		return models.OutcomeApproved, nil
	case reject > totalWeight/2:
		return models.OutcomeRejected, nil
	default:
		return models.OutcomeCompromise, nil
	}
}

// resolveConsensusWithVeto approves only if every participant votes Approve
// or Abstain, and no participant votes Reject (a veto); a single veto
// rejects the decision outright regardless of the rest of the tally.
func resolveConsensusWithVeto(votes []models.Vote, quorum int) (models.DecisionOutcome, []string) {
	if len(votes) < quorum {
		return models.OutcomeDeferred, nil
	}
	var vetoBy []string
	for _, v := range votes {
		if v.Value == models.VoteReject {
			vetoBy = append(vetoBy, v.AgentID)
		}
	}
	if len(vetoBy) > 0 {
		return models.OutcomeRejected, vetoBy
	}
	approve, _, _, defer_ := tally(votes)
	if defer_ > 0 {
		return models.OutcomeDeferred, nil
	}
	if approve > 0 {
		return models.OutcomeApproved, nil
	}
	return models.OutcomeDeferred, nil
}

// resolveDelegated treats a Defer vote as delegating weight to the majority
// of explicit (non-Defer, non-Abstain) votes; it otherwise behaves like
// simple majority over the remaining ballots.
func resolveDelegated(votes []models.Vote, quorum int) (models.DecisionOutcome, []string) {
	if len(votes) < quorum {
		return models.OutcomeDeferred, nil
	}
	var explicit []models.Vote
	for _, v := range votes {
		if v.Value == models.VoteApprove || v.Value == models.VoteReject {
			explicit = append(explicit, v)
		}
	}
	if len(explicit) == 0 {
		return models.OutcomeDeferred, nil
	}
	approve, reject, _, _ := tally(explicit)
	switch {
	case approve > reject:
		return models.OutcomeApproved, nil
	case reject > approve:
		return models.OutcomeRejected, nil
	default:
		return models.OutcomeEscalated, nil
	}
}
