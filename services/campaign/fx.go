package campaign

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("campaign.store",
	fx.Provide(NewStore),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Campaign{},
		&Recipient{},
		&GeneratedAsset{},
		&CampaignAnalytics{},
	)
}
