package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type Tier string
type CampaignStatus string
type RecipientStatus string
type AssetType string

const (
	TierBasic    Tier = "basic"
	TierSmart    Tier = "smart"
	TierAdvanced Tier = "advanced"

	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusReady      CampaignStatus = "ready"
	CampaignStatusCancelled  CampaignStatus = "cancelled"

	RecipientStatusPending    RecipientStatus = "pending"
	RecipientStatusProcessing RecipientStatus = "processing"
	RecipientStatusReady      RecipientStatus = "ready"
	RecipientStatusFailed     RecipientStatus = "failed"
	RecipientStatusCancelled  RecipientStatus = "cancelled"

	AssetTypeIntro          AssetType = "intro"
	AssetTypeSubjectOptions AssetType = "subject_options"
	AssetTypeCTA            AssetType = "cta"
	AssetTypeBroll          AssetType = "broll"
	AssetTypeCaption        AssetType = "caption"
	AssetTypePainCTA        AssetType = "pain_cta"
	AssetTypeInsight        AssetType = "insight"
	AssetTypeBackground     AssetType = "background"
)

// Campaign is one outreach run definition. Status transitions are owned by the
// orchestrator except `cancelled`, which operators may set at any time.
type Campaign struct {
	CampaignID      string         `gorm:"column:campaign_id;primaryKey;type:varchar(26)"`
	Name            string         `gorm:"column:name;type:varchar(255);not null"`
	Tier            Tier           `gorm:"column:tier;type:varchar(20);not null;default:'basic'"`
	TemplateScript  string         `gorm:"column:template_script;type:text"`
	Goal            string         `gorm:"column:goal;type:text"`
	MasterVideoURL  string         `gorm:"column:master_video_url"`
	Status          CampaignStatus `gorm:"column:status;type:varchar(20);not null;default:'draft'"`
	TotalRecipients int            `gorm:"column:total_recipients;not null;default:0"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// Recipient is the unit of work in the batch pipeline. Derived fields
// (video URL, cost, timing, error) are written once on terminal transition.
type Recipient struct {
	RecipientID          string          `gorm:"column:recipient_id;primaryKey;type:varchar(26)"`
	CampaignID           string          `gorm:"column:campaign_id;index;not null"`
	Email                string          `gorm:"column:email;type:varchar(255);not null"`
	FirstName            string          `gorm:"column:first_name"`
	LastName             string          `gorm:"column:last_name"`
	Company              string          `gorm:"column:company"`
	Role                 string          `gorm:"column:role"`
	Industry             string          `gorm:"column:industry"`
	PainPoint            string          `gorm:"column:pain_point"`
	CustomFields         datatypes.JSON  `gorm:"column:custom_fields;type:jsonb"`
	Status               RecipientStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'"`
	ClaimedAt            *time.Time      `gorm:"column:claimed_at"`
	PersonalizedVideoURL string          `gorm:"column:personalized_video_url"`
	GenerationCost       float64         `gorm:"column:generation_cost;not null;default:0"`
	ProcessingTimeMs     int64           `gorm:"column:processing_time_ms;not null;default:0"`
	ErrorMessage         string          `gorm:"column:error_message;type:text"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// GeneratedAsset rows are append-only; a re-run adds new rows so the asset
// history stays auditable.
type GeneratedAsset struct {
	AssetID          string         `gorm:"column:asset_id;primaryKey;type:varchar(26)"`
	RecipientID      string         `gorm:"column:recipient_id;index;not null"`
	Type             AssetType      `gorm:"column:type;type:varchar(30);not null"`
	Payload          datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Prompt           string         `gorm:"column:prompt;type:text"`
	GenerationTimeMs int64          `gorm:"column:generation_time_ms;not null;default:0"`
	Cost             float64        `gorm:"column:cost;not null;default:0"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// CampaignAnalytics is one row per campaign, recomputed (not patched) at the
// end of each full run so partial failures cannot drift the totals.
type CampaignAnalytics struct {
	CampaignID      string    `gorm:"column:campaign_id;primaryKey;type:varchar(26)"`
	VideosGenerated int       `gorm:"column:videos_generated;not null;default:0"`
	TotalCost       float64   `gorm:"column:total_cost;not null;default:0"`
	TotalRecipients int       `gorm:"column:total_recipients;not null;default:0"`
	TotalViews      int       `gorm:"column:total_views;not null;default:0"`
	TotalSends      int       `gorm:"column:total_sends;not null;default:0"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string          { return "campaigns" }
func (Recipient) TableName() string         { return "recipients" }
func (GeneratedAsset) TableName() string    { return "generated_assets" }
func (CampaignAnalytics) TableName() string { return "campaign_analytics" }

// FullName joins the recipient's name parts for prompt building.
func (r *Recipient) FullName() string {
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// IsTerminal reports whether the recipient reached an end state of the
// pipeline state machine.
func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientStatusReady || s == RecipientStatusFailed || s == RecipientStatusCancelled
}

// RenderCost is the flat per-video synthesis fee for a tier, independent of
// actual compute.
func (t Tier) RenderCost() float64 {
	switch t {
	case TierSmart:
		return 0.05
	case TierAdvanced:
		return 0.15
	default:
		return 0.02
	}
}

// AverageSeconds is the planning constant used by processing-time estimates.
func (t Tier) AverageSeconds() int {
	switch t {
	case TierSmart:
		return 15
	case TierAdvanced:
		return 30
	default:
		return 5
	}
}
