package database

import (
	"context"
	"encoding/json"
)

func orEmptyArr(v json.RawMessage) json.RawMessage {
	if v == nil {
		return json.RawMessage(`[]`)
	}
	return v
}

func orEmptyObj(v json.RawMessage) json.RawMessage {
	if v == nil {
		return json.RawMessage(`{}`)
	}
	return v
}

// InsightRow holds layer 2's sentiment and customer-health output.
type InsightRow struct {
	MeetingID           int64
	NPSScore            *int
	NPSConfidence       *float64
	ChurnRiskLevel      *string
	ChurnRiskScore      *float64
	CustomerHealthScore *int
	SentimentPositive   float64
	SentimentNegative   float64
	SentimentNeutral    float64
	MeetingQualityScore *int
	ExpansionSignals    json.RawMessage
	Topics              json.RawMessage
	Details             json.RawMessage
}

func (db *DB) UpsertInsight(ctx context.Context, r *InsightRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_insights (
			meeting_id, nps_score, nps_confidence, churn_risk_level, churn_risk_score,
			customer_health_score, sentiment_positive, sentiment_negative, sentiment_neutral,
			meeting_quality_score, expansion_signals, topics, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (meeting_id) DO UPDATE SET
			nps_score = EXCLUDED.nps_score,
			nps_confidence = EXCLUDED.nps_confidence,
			churn_risk_level = EXCLUDED.churn_risk_level,
			churn_risk_score = EXCLUDED.churn_risk_score,
			customer_health_score = EXCLUDED.customer_health_score,
			sentiment_positive = EXCLUDED.sentiment_positive,
			sentiment_negative = EXCLUDED.sentiment_negative,
			sentiment_neutral = EXCLUDED.sentiment_neutral,
			meeting_quality_score = EXCLUDED.meeting_quality_score,
			expansion_signals = EXCLUDED.expansion_signals,
			topics = EXCLUDED.topics,
			details = EXCLUDED.details,
			updated_at = NOW()
	`,
		r.MeetingID, r.NPSScore, r.NPSConfidence, r.ChurnRiskLevel, r.ChurnRiskScore,
		r.CustomerHealthScore, r.SentimentPositive, r.SentimentNegative, r.SentimentNeutral,
		r.MeetingQualityScore, orEmptyArr(r.ExpansionSignals), orEmptyArr(r.Topics), orEmptyObj(r.Details),
	)
	return err
}

// ResolutionRow holds layer 3's outcome tracking.
type ResolutionRow struct {
	MeetingID              int64
	ObjectivesMetScore     *int
	FCRAchieved            *bool
	EscalationRequired     *bool
	EscalationTo           *string
	LoopClosureScore       *int
	ActionItemQualityScore *int
	FollowUpRequired       *bool
	Decisions              json.RawMessage
	UnresolvedIssues       json.RawMessage
	Details                json.RawMessage
}

func (db *DB) UpsertResolution(ctx context.Context, r *ResolutionRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_resolutions (
			meeting_id, objectives_met_score, fcr_achieved, escalation_required, escalation_to,
			loop_closure_score, action_item_quality_score, follow_up_required,
			decisions, unresolved_issues, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (meeting_id) DO UPDATE SET
			objectives_met_score = EXCLUDED.objectives_met_score,
			fcr_achieved = EXCLUDED.fcr_achieved,
			escalation_required = EXCLUDED.escalation_required,
			escalation_to = EXCLUDED.escalation_to,
			loop_closure_score = EXCLUDED.loop_closure_score,
			action_item_quality_score = EXCLUDED.action_item_quality_score,
			follow_up_required = EXCLUDED.follow_up_required,
			decisions = EXCLUDED.decisions,
			unresolved_issues = EXCLUDED.unresolved_issues,
			details = EXCLUDED.details,
			updated_at = NOW()
	`,
		r.MeetingID, r.ObjectivesMetScore, r.FCRAchieved, r.EscalationRequired, r.EscalationTo,
		r.LoopClosureScore, r.ActionItemQualityScore, r.FollowUpRequired,
		orEmptyArr(r.Decisions), orEmptyArr(r.UnresolvedIssues), orEmptyObj(r.Details),
	)
	return err
}

// RecommendationRow holds layer 4's coaching and follow-up output.
type RecommendationRow struct {
	MeetingID            int64
	FollowUpPriority     *string
	FollowUpDeadline     *string
	HostCoaching         json.RawMessage
	SalesRecommendations json.RawMessage
	SuccessActions       json.RawMessage
	ProcessImprovements  json.RawMessage
	Details              json.RawMessage
}

func (db *DB) UpsertRecommendation(ctx context.Context, r *RecommendationRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_recommendations (
			meeting_id, follow_up_priority, follow_up_deadline,
			host_coaching, sales_recommendations, success_actions, process_improvements, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id) DO UPDATE SET
			follow_up_priority = EXCLUDED.follow_up_priority,
			follow_up_deadline = EXCLUDED.follow_up_deadline,
			host_coaching = EXCLUDED.host_coaching,
			sales_recommendations = EXCLUDED.sales_recommendations,
			success_actions = EXCLUDED.success_actions,
			process_improvements = EXCLUDED.process_improvements,
			details = EXCLUDED.details,
			updated_at = NOW()
	`,
		r.MeetingID, r.FollowUpPriority, r.FollowUpDeadline,
		orEmptyArr(r.HostCoaching), orEmptyArr(r.SalesRecommendations),
		orEmptyArr(r.SuccessActions), orEmptyArr(r.ProcessImprovements), orEmptyObj(r.Details),
	)
	return err
}

// AdvancedMetricsRow holds layer 5's quantitative call metrics.
type AdvancedMetricsRow struct {
	MeetingID           int64
	BlueprintScore      *int
	TalkListenRatio     *float64
	DealValue           *string
	DealCurrency        *string
	ContractLength      *string
	SpeakingTime        json.RawMessage
	CompetitiveMentions json.RawMessage
	Details             json.RawMessage
}

func (db *DB) UpsertAdvancedMetrics(ctx context.Context, r *AdvancedMetricsRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_advanced_metrics (
			meeting_id, blueprint_score, talk_listen_ratio,
			deal_value, deal_currency, contract_length,
			speaking_time, competitive_mentions, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (meeting_id) DO UPDATE SET
			blueprint_score = EXCLUDED.blueprint_score,
			talk_listen_ratio = EXCLUDED.talk_listen_ratio,
			deal_value = EXCLUDED.deal_value,
			deal_currency = EXCLUDED.deal_currency,
			contract_length = EXCLUDED.contract_length,
			speaking_time = EXCLUDED.speaking_time,
			competitive_mentions = EXCLUDED.competitive_mentions,
			details = EXCLUDED.details,
			updated_at = NOW()
	`,
		r.MeetingID, r.BlueprintScore, r.TalkListenRatio,
		r.DealValue, r.DealCurrency, r.ContractLength,
		orEmptyObj(r.SpeakingTime), orEmptyArr(r.CompetitiveMentions), orEmptyObj(r.Details),
	)
	return err
}

// LearningRow holds layer 6's learning-intelligence output.
type LearningRow struct {
	MeetingID               int64
	LearningScore           *float64
	EntropyDelta            *float64
	CoherenceDelta          *float64
	EmotionalEngagement     *float64
	PhaseAlignment          *float64
	LearningState           *string
	KnowledgeTransferRate   *float64
	TeachingEffectiveness   *int
	PacingAdjustments       json.RawMessage
	CoachingRecommendations json.RawMessage
	Details                 json.RawMessage
}

func (db *DB) UpsertLearning(ctx context.Context, r *LearningRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_learning_analysis (
			meeting_id, learning_score, entropy_delta, coherence_delta,
			emotional_engagement, phase_alignment, learning_state,
			knowledge_transfer_rate, teaching_effectiveness,
			pacing_adjustments, coaching_recommendations, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (meeting_id) DO UPDATE SET
			learning_score = EXCLUDED.learning_score,
			entropy_delta = EXCLUDED.entropy_delta,
			coherence_delta = EXCLUDED.coherence_delta,
			emotional_engagement = EXCLUDED.emotional_engagement,
			phase_alignment = EXCLUDED.phase_alignment,
			learning_state = EXCLUDED.learning_state,
			knowledge_transfer_rate = EXCLUDED.knowledge_transfer_rate,
			teaching_effectiveness = EXCLUDED.teaching_effectiveness,
			pacing_adjustments = EXCLUDED.pacing_adjustments,
			coaching_recommendations = EXCLUDED.coaching_recommendations,
			details = EXCLUDED.details,
			updated_at = NOW()
	`,
		r.MeetingID, r.LearningScore, r.EntropyDelta, r.CoherenceDelta,
		r.EmotionalEngagement, r.PhaseAlignment, r.LearningState,
		r.KnowledgeTransferRate, r.TeachingEffectiveness,
		orEmptyObj(r.PacingAdjustments), orEmptyArr(r.CoachingRecommendations), orEmptyObj(r.Details),
	)
	return err
}

// LayerRowExists reports whether the layer's output table has a row for the
// meeting. Used by the cascade's consistency checks.
func (db *DB) LayerRowExists(ctx context.Context, meetingID int64, layer int) (bool, error) {
	tables := map[int]string{
		2: "meeting_insights",
		3: "meeting_resolutions",
		4: "meeting_recommendations",
		5: "meeting_advanced_metrics",
		6: "meeting_learning_analysis",
	}
	table, ok := tables[layer]
	if !ok {
		// Layer 1 writes onto the meeting row itself.
		return true, nil
	}
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE meeting_id = $1)`, meetingID,
	).Scan(&exists)
	return exists, err
}
