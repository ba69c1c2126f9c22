package utils

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"databender/models"
)

// W-shaped credit split, used once an opportunity anchor exists
const (
	WShapeAnchorCredit = 0.30
	WShapeMiddleCredit = 0.10
)

// Pre-opportunity split, used while only first-touch and lead-creation exist
const (
	PreOpportunityAnchorCredit = 0.40
	PreOpportunityMiddleCredit = 0.20
)

// TouchpointCredit pairs a touchpoint with its assigned credit fraction.
type TouchpointCredit struct {
	Touchpoint models.Touchpoint `json:"touchpoint"`
	Credit     float64           `json:"credit"`
}

// AttributionResult is the computed credit assignment for one visitor. It is
// derived on demand, never stored verbatim (the opportunity snapshot keeps a
// serialized copy as of opportunity time).
type AttributionResult struct {
	VisitorID           string             `json:"visitorId"`
	ConversionTimestamp time.Time          `json:"conversionTimestamp"`
	FirstTouch          TouchpointCredit   `json:"firstTouch"`
	LeadCreation        TouchpointCredit   `json:"leadCreation"`
	OpportunityCreation *TouchpointCredit  `json:"opportunityCreation,omitempty"`
	DealValue           float64            `json:"dealValue,omitempty"`
	MiddleTouchpoints   []TouchpointCredit `json:"middleTouchpoints"`
	ChannelCredits      map[string]float64 `json:"channelCredits"`
	TotalTouchpoints    int                `json:"totalTouchpoints"`
}

// ChannelAttribution is one channel's row in the date-range summary.
type ChannelAttribution struct {
	Channel                string  `json:"channel"`
	TotalCredit            float64 `json:"totalCredit"`
	Conversions            int     `json:"conversions"`
	Revenue                float64 `json:"revenue,omitempty"`
	AvgCreditPerConversion float64 `json:"avgCreditPerConversion"`
	FirstTouchCount        int     `json:"firstTouchCount"`
	LeadCreationCount      int     `json:"leadCreationCount"`
	OpportunityCount       int     `json:"opportunityCount"`
	AssistCount            int     `json:"assistCount"`
}

// SummaryPeriod describes the date window a summary covers.
type SummaryPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Days      int    `json:"days"`
}

// CreditModel documents the credit split constants alongside computed
// figures in API responses.
type CreditModel struct {
	FullShape      string `json:"fullShape"`
	PreOpportunity string `json:"preOpportunity"`
}

// ChannelSummary aggregates per-visitor attribution over a date range. It is
// always recomputed from touchpoints, never stored, so the summary and the
// per-visitor detail views cannot drift apart.
type ChannelSummary struct {
	Period           SummaryPeriod        `json:"period"`
	Model            CreditModel          `json:"model"`
	TotalConversions int                  `json:"totalConversions"`
	TotalRevenue     float64              `json:"totalRevenue,omitempty"`
	Channels         []ChannelAttribution `json:"channels"`
}

// AttributionEngine computes W-shaped multi-touch attribution over the
// touchpoint log.
type AttributionEngine struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewAttributionEngine(db *gorm.DB, logger *logrus.Logger) *AttributionEngine {
	return &AttributionEngine{DB: db, Logger: logger}
}

// StoreTouchpoint appends one interaction to the visitor's touchpoint log.
func (e *AttributionEngine) StoreTouchpoint(tp *models.Touchpoint) error {
	if tp.Timestamp.IsZero() {
		tp.Timestamp = time.Now()
	}
	return e.DB.Create(tp).Error
}

// CalculateAttribution computes the credit assignment for a visitor using
// touchpoints up to asOf. Returns nil when the visitor has no touchpoints.
func (e *AttributionEngine) CalculateAttribution(visitorID string, asOf time.Time) (*AttributionResult, error) {
	var touchpoints []models.Touchpoint
	err := e.DB.
		Where("visitor_id = ? AND timestamp <= ?", visitorID, asOf).
		Order("timestamp ASC, id ASC").
		Find(&touchpoints).Error
	if err != nil {
		return nil, fmt.Errorf("loading touchpoints for %s: %w", visitorID, err)
	}
	if len(touchpoints) == 0 {
		return nil, nil
	}

	result := &AttributionResult{
		VisitorID:           visitorID,
		ConversionTimestamp: asOf,
		TotalTouchpoints:    len(touchpoints),
		MiddleTouchpoints:   []TouchpointCredit{},
		ChannelCredits:      map[string]float64{},
	}

	hasOpportunity := false
	var opportunity models.Opportunity
	err = e.DB.Where("visitor_id = ?", visitorID).First(&opportunity).Error
	switch {
	case err == nil:
		if !opportunity.Timestamp.After(asOf) {
			hasOpportunity = true
			result.DealValue = opportunity.DealValue
		}
	case err != gorm.ErrRecordNotFound:
		return nil, fmt.Errorf("loading opportunity for %s: %w", visitorID, err)
	}

	// A sole touchpoint is every anchor at once and takes all the credit.
	if len(touchpoints) == 1 {
		result.FirstTouch = TouchpointCredit{Touchpoint: touchpoints[0], Credit: 1.0}
		result.LeadCreation = result.FirstTouch
		if hasOpportunity {
			only := result.FirstTouch
			result.OpportunityCreation = &only
		}
		result.ChannelCredits[touchpoints[0].Source] = 1.0
		return result, nil
	}

	leadIdx := e.leadAnchorIndex(visitorID, touchpoints)

	oppIdx := -1
	if hasOpportunity {
		oppIdx = anchorIndex(touchpoints, opportunity.Timestamp)
	}

	anchorCredit := PreOpportunityAnchorCredit
	middleCredit := PreOpportunityMiddleCredit
	anchorCount := 2
	if oppIdx >= 0 {
		anchorCredit = WShapeAnchorCredit
		middleCredit = WShapeMiddleCredit
		anchorCount = 3
	}

	// Middles sit strictly between first touch and the latest anchor;
	// trailing touches past the latest anchor carry no credit.
	latestAnchor := leadIdx
	if oppIdx > latestAnchor {
		latestAnchor = oppIdx
	}
	var middleIdx []int
	for i := 1; i < latestAnchor; i++ {
		if i == leadIdx || i == oppIdx {
			continue
		}
		middleIdx = append(middleIdx, i)
	}

	// Without middles the reserved share folds back into the anchors so
	// total credit still sums to 1.0
	perAnchor := anchorCredit
	if len(middleIdx) == 0 {
		perAnchor += middleCredit / float64(anchorCount)
	}

	result.FirstTouch = TouchpointCredit{Touchpoint: touchpoints[0], Credit: perAnchor}
	result.LeadCreation = TouchpointCredit{Touchpoint: touchpoints[leadIdx], Credit: perAnchor}
	if oppIdx >= 0 {
		result.OpportunityCreation = &TouchpointCredit{Touchpoint: touchpoints[oppIdx], Credit: perAnchor}
	}

	if len(middleIdx) > 0 {
		perMiddle := middleCredit / float64(len(middleIdx))
		for _, i := range middleIdx {
			result.MiddleTouchpoints = append(result.MiddleTouchpoints, TouchpointCredit{
				Touchpoint: touchpoints[i],
				Credit:     perMiddle,
			})
		}
	}

	addCredit := func(tc TouchpointCredit) {
		result.ChannelCredits[tc.Touchpoint.Source] += tc.Credit
	}
	addCredit(result.FirstTouch)
	addCredit(result.LeadCreation)
	if result.OpportunityCreation != nil {
		addCredit(*result.OpportunityCreation)
	}
	for _, m := range result.MiddleTouchpoints {
		addCredit(m)
	}

	return result, nil
}

// leadAnchorIndex finds the lead-creation anchor: the touchpoint nearest
// at-or-before the lead's creation time. Visitors without a lead record fall
// back to their latest conversion-type touchpoint, then to the first touch.
func (e *AttributionEngine) leadAnchorIndex(visitorID string, touchpoints []models.Touchpoint) int {
	var lead models.Lead
	err := e.DB.Where("visitor_id = ?", visitorID).Order("created_at ASC").First(&lead).Error
	if err == nil {
		return anchorIndex(touchpoints, lead.CreatedAt)
	}
	if err != gorm.ErrRecordNotFound && e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"visitor_id": visitorID,
			"error":      err.Error(),
		}).Warn("lead anchor lookup failed, falling back to conversion touchpoint")
	}

	for i := len(touchpoints) - 1; i >= 0; i-- {
		if models.IsConversionTouchpoint(touchpoints[i].Type) {
			return i
		}
	}
	return 0
}

// anchorIndex locates the touchpoint nearest at-or-before target in a slice
// sorted by (timestamp, id). Touchpoints sharing the boundary timestamp
// resolve to the earliest inserted. Falls back to the first touch when
// nothing precedes target.
func anchorIndex(touchpoints []models.Touchpoint, target time.Time) int {
	idx := sort.Search(len(touchpoints), func(i int) bool {
		return touchpoints[i].Timestamp.After(target)
	}) - 1
	if idx < 0 {
		return 0
	}
	for idx > 0 && touchpoints[idx-1].Timestamp.Equal(touchpoints[idx].Timestamp) {
		idx--
	}
	return idx
}

// GetChannelAttribution aggregates per-visitor attribution across every
// visitor who converted in the date range.
func (e *AttributionEngine) GetChannelAttribution(startDate, endDate time.Time) (*ChannelSummary, error) {
	var touchpoints []models.Touchpoint
	err := e.DB.
		Where("timestamp >= ? AND timestamp <= ?", startDate, endDate).
		Order("timestamp ASC, id ASC").
		Find(&touchpoints).Error
	if err != nil {
		return nil, fmt.Errorf("loading touchpoints for range: %w", err)
	}

	type channelRow struct {
		totalCredit       float64
		conversions       int
		revenue           float64
		firstTouchCount   int
		leadCreationCount int
		opportunityCount  int
		assistCount       int
	}
	channelData := map[string]*channelRow{}
	row := func(channel string) *channelRow {
		r, ok := channelData[channel]
		if !ok {
			r = &channelRow{}
			channelData[channel] = r
		}
		return r
	}

	// Group by visitor, preserving order
	visitorOrder := []string{}
	byVisitor := map[string][]models.Touchpoint{}
	for _, tp := range touchpoints {
		if _, ok := byVisitor[tp.VisitorID]; !ok {
			visitorOrder = append(visitorOrder, tp.VisitorID)
		}
		byVisitor[tp.VisitorID] = append(byVisitor[tp.VisitorID], tp)
	}

	totalConversions := 0
	totalRevenue := 0.0

	for _, visitorID := range visitorOrder {
		vtps := byVisitor[visitorID]

		var conversion *models.Touchpoint
		for i := range vtps {
			if models.IsConversionTouchpoint(vtps[i].Type) {
				conversion = &vtps[i]
				break
			}
		}
		if conversion == nil {
			continue
		}
		totalConversions++

		attribution, err := e.CalculateAttribution(visitorID, endDate)
		if err != nil {
			if e.Logger != nil {
				e.Logger.WithFields(logrus.Fields{
					"visitor_id": visitorID,
					"error":      err.Error(),
				}).Warn("attribution failed for visitor, skipping")
			}
			continue
		}
		if attribution == nil {
			continue
		}
		totalRevenue += attribution.DealValue

		for channel, credit := range attribution.ChannelCredits {
			r := row(channel)
			r.totalCredit += credit
			r.conversions++
			r.revenue += attribution.DealValue * credit
		}

		row(attribution.FirstTouch.Touchpoint.Source).firstTouchCount++
		row(attribution.LeadCreation.Touchpoint.Source).leadCreationCount++
		if attribution.OpportunityCreation != nil {
			row(attribution.OpportunityCreation.Touchpoint.Source).opportunityCount++
		}
		for _, m := range attribution.MiddleTouchpoints {
			row(m.Touchpoint.Source).assistCount++
		}
	}

	channels := make([]ChannelAttribution, 0, len(channelData))
	for channel, r := range channelData {
		avg := 0.0
		if r.conversions > 0 {
			avg = r.totalCredit / float64(r.conversions)
		}
		channels = append(channels, ChannelAttribution{
			Channel:                channel,
			TotalCredit:            r.totalCredit,
			Conversions:            r.conversions,
			Revenue:                r.revenue,
			AvgCreditPerConversion: avg,
			FirstTouchCount:        r.firstTouchCount,
			LeadCreationCount:      r.leadCreationCount,
			OpportunityCount:       r.opportunityCount,
			AssistCount:            r.assistCount,
		})
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].TotalCredit > channels[j].TotalCredit
	})

	days := int(endDate.Sub(startDate).Hours()/24 + 0.5)
	return &ChannelSummary{
		Period: SummaryPeriod{
			StartDate: startDate.Format("2006-01-02"),
			EndDate:   endDate.Format("2006-01-02"),
			Days:      days,
		},
		Model: CreditModel{
			FullShape:      "30/30/30/10",
			PreOpportunity: "40/40/20",
		},
		TotalConversions: totalConversions,
		TotalRevenue:     totalRevenue,
		Channels:         channels,
	}, nil
}

// MarkOpportunityCreated upserts the opportunity anchor for a visitor. A
// repeat call overwrites the previous timestamp and value rather than
// creating a duplicate. The attribution at opportunity time is stored as a
// snapshot for later audit.
func (e *AttributionEngine) MarkOpportunityCreated(visitorID string, timestamp time.Time, dealValue float64) error {
	var snapshot string
	attribution, err := e.CalculateAttribution(visitorID, timestamp)
	if err != nil {
		if e.Logger != nil {
			e.Logger.WithFields(logrus.Fields{
				"visitor_id": visitorID,
				"error":      err.Error(),
			}).Warn("snapshot attribution failed, storing opportunity without it")
		}
	} else if attribution != nil {
		if raw, err := json.Marshal(attribution); err == nil {
			snapshot = string(raw)
		}
	}

	opportunity := models.Opportunity{
		VisitorID:           visitorID,
		Timestamp:           timestamp,
		DealValue:           dealValue,
		AttributionSnapshot: snapshot,
	}
	return e.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "visitor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp", "deal_value", "attribution_snapshot", "updated_at",
		}),
	}).Create(&opportunity).Error
}

// RecordSelfReportedSource stores a "how did you hear about us" answer as
// both a survey record and a synthetic touchpoint. Self-reported answers
// keep their own channel bucket; they are asserted, not observed, so they
// never fold into marketing channels.
func (e *AttributionEngine) RecordSelfReportedSource(visitorID, response string) error {
	now := time.Now()

	record := models.SelfReportedSource{
		VisitorID:         visitorID,
		Timestamp:         now,
		Response:          response,
		NormalizedChannel: NormalizeSelfReportedResponse(response),
	}
	if err := e.DB.Create(&record).Error; err != nil {
		return fmt.Errorf("storing self-reported source: %w", err)
	}

	return e.StoreTouchpoint(&models.Touchpoint{
		VisitorID: visitorID,
		Timestamp: now,
		Type:      models.TouchpointSelfReported,
		Source:    "self-reported",
		Medium:    "survey",
		Campaign:  response,
	})
}
