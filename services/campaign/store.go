package campaign

import (
	"context"
	"errors"
	"time"

	"videoreach-engine/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the typed persistence adapter the orchestrator works against.
// All updates are partial: only the supplied columns change.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node
}

type StoreParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		node: p.Node,
	}
}

// CreateCampaign inserts the campaign, its recipients, and the analytics row
// in one transaction. total_recipients is fixed at ingestion time and never
// recomputed from processing.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign, recipients []Recipient) error {
	if c.CampaignID == "" {
		c.CampaignID = s.node.Generate().String()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	c.TotalRecipients = len(recipients)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		for i := range recipients {
			recipients[i].CampaignID = c.CampaignID
			if recipients[i].RecipientID == "" {
				recipients[i].RecipientID = s.node.Generate().String()
			}
			if recipients[i].Status == "" {
				recipients[i].Status = RecipientStatusPending
			}
		}
		if len(recipients) > 0 {
			if err := tx.CreateInBatches(recipients, 100).Error; err != nil {
				return err
			}
		}
		return tx.Create(&CampaignAnalytics{
			CampaignID:      c.CampaignID,
			TotalRecipients: len(recipients),
		}).Error
	})
	if err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return errutil.StoreUnavailable("create campaign", err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var c Campaign
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("campaign not found", errutil.WithErr(err))
		}
		return nil, errutil.StoreUnavailable("get campaign", err)
	}
	return &c, nil
}

func (s *Store) UpdateCampaign(ctx context.Context, campaignID string, fields map[string]any) error {
	if err := s.db.WithContext(ctx).
		Model(&Campaign{}).
		Where("campaign_id = ?", campaignID).
		Updates(fields).Error; err != nil {
		zap.L().Error("failed to update campaign", zap.String("campaign_id", campaignID), zap.Error(err))
		return errutil.StoreUnavailable("update campaign", err)
	}
	return nil
}

// CancelCampaign is the operator-facing escape hatch; it is the only campaign
// status write not owned by the orchestrator. Pending recipients are cancelled
// in bulk; in-flight ones are left to finish.
func (s *Store) CancelCampaign(ctx context.Context, campaignID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Campaign{}).
			Where("campaign_id = ?", campaignID).
			Update("status", CampaignStatusCancelled).Error; err != nil {
			return err
		}
		return tx.Model(&Recipient{}).
			Where("campaign_id = ? AND status = ?", campaignID, RecipientStatusPending).
			Update("status", RecipientStatusCancelled).Error
	})
	if err != nil {
		return errutil.StoreUnavailable("cancel campaign", err)
	}
	return nil
}

// ListRecipients returns the full current rows for a campaign, optionally
// filtered by status. Ordered by creation so batch partitions are stable.
func (s *Store) ListRecipients(ctx context.Context, campaignID string, statuses ...RecipientStatus) ([]Recipient, error) {
	var recipients []Recipient
	q := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at ASC, recipient_id ASC").Find(&recipients).Error; err != nil {
		return nil, errutil.StoreUnavailable("list recipients", err)
	}
	return recipients, nil
}

func (s *Store) GetRecipient(ctx context.Context, recipientID string) (*Recipient, error) {
	var r Recipient
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("recipient not found", errutil.WithErr(err))
		}
		return nil, errutil.StoreUnavailable("get recipient", err)
	}
	return &r, nil
}

func (s *Store) UpdateRecipient(ctx context.Context, recipientID string, fields map[string]any) error {
	if err := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("recipient_id = ?", recipientID).
		Updates(fields).Error; err != nil {
		zap.L().Error("failed to update recipient", zap.String("recipient_id", recipientID), zap.Error(err))
		return errutil.StoreUnavailable("update recipient", err)
	}
	return nil
}

// ClaimRecipient conditionally moves a recipient from the given status to
// `processing` and stamps the claim lease. The conditional WHERE makes the
// claim the only lock a recipient row needs: losing the race means another
// worker owns it.
func (s *Store) ClaimRecipient(ctx context.Context, recipientID string, from RecipientStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("recipient_id = ? AND status = ?", recipientID, from).
		Updates(map[string]any{
			"status":     RecipientStatusProcessing,
			"claimed_at": time.Now(),
		})
	if res.Error != nil {
		return false, errutil.StoreUnavailable("claim recipient", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// InsertAssets appends generated assets for a recipient. Rows are write-once;
// re-runs append rather than mutate.
func (s *Store) InsertAssets(ctx context.Context, recipientID string, assets []GeneratedAsset) error {
	if len(assets) == 0 {
		return nil
	}
	for i := range assets {
		assets[i].RecipientID = recipientID
		if assets[i].AssetID == "" {
			assets[i].AssetID = s.node.Generate().String()
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(assets, 100).Error; err != nil {
		zap.L().Error("failed to insert assets", zap.String("recipient_id", recipientID), zap.Error(err))
		return errutil.StoreUnavailable("insert assets", err)
	}
	return nil
}

func (s *Store) ListAssets(ctx context.Context, recipientID string) ([]GeneratedAsset, error) {
	var assets []GeneratedAsset
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at ASC, asset_id ASC").
		Find(&assets).Error; err != nil {
		return nil, errutil.StoreUnavailable("list assets", err)
	}
	return assets, nil
}

func (s *Store) GetAnalytics(ctx context.Context, campaignID string) (*CampaignAnalytics, error) {
	var a CampaignAnalytics
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("campaign analytics not found", errutil.WithErr(err))
		}
		return nil, errutil.StoreUnavailable("get analytics", err)
	}
	return &a, nil
}

func (s *Store) UpdateAnalytics(ctx context.Context, campaignID string, fields map[string]any) error {
	if err := s.db.WithContext(ctx).
		Model(&CampaignAnalytics{}).
		Where("campaign_id = ?", campaignID).
		Updates(fields).Error; err != nil {
		return errutil.StoreUnavailable("update analytics", err)
	}
	return nil
}

// RecomputeAnalytics rewrites videos_generated and total_cost from the full
// recipient set. Recomputed, never incrementally patched, so partial failures
// cannot drift the totals.
func (s *Store) RecomputeAnalytics(ctx context.Context, campaignID string) (*CampaignAnalytics, error) {
	var totalCost float64
	if err := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("campaign_id = ?", campaignID).
		Select("COALESCE(SUM(generation_cost), 0)").
		Scan(&totalCost).Error; err != nil {
		return nil, errutil.StoreUnavailable("sum recipient costs", err)
	}

	var videosGenerated int64
	if err := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("campaign_id = ?", campaignID).
		Where("status = ? OR (status = ? AND generation_cost > 0)", RecipientStatusReady, RecipientStatusFailed).
		Count(&videosGenerated).Error; err != nil {
		return nil, errutil.StoreUnavailable("count generated videos", err)
	}

	fields := map[string]any{
		"videos_generated": int(videosGenerated),
		"total_cost":       totalCost,
	}
	if err := s.UpdateAnalytics(ctx, campaignID, fields); err != nil {
		return nil, err
	}

	zap.L().Info("campaign analytics recomputed",
		zap.String("campaign_id", campaignID),
		zap.Int64("videos_generated", videosGenerated),
		zap.Float64("total_cost", totalCost),
	)

	return s.GetAnalytics(ctx, campaignID)
}

// RequeueStaleProcessing resets recipients whose claim lease expired before
// the cutoff back to `pending`. Returns the number of requeued rows.
func (s *Store) RequeueStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", RecipientStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     RecipientStatusPending,
			"claimed_at": nil,
		})
	if res.Error != nil {
		return 0, errutil.StoreUnavailable("requeue stale processing", res.Error)
	}
	return res.RowsAffected, nil
}
