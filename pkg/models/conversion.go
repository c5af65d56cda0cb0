package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Conversion is a derived artifact of a source in another format, stored
// under the converted/ namespace.
type Conversion struct {
	bun.BaseModel `bun:"table:conversions,alias:cv"`

	ID        int64     `bun:",pk,nullzero" json:"id"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Version   int64     `json:"version"`
	SourceID  int64     `bun:",nullzero" json:"source_id"`
	Source    *Source   `bun:"rel:belongs-to,join:source_id=id" json:"-"`
	FormatID  int64     `bun:",nullzero" json:"format_id"`
	Format    *Format   `bun:"rel:belongs-to,join:format_id=id" json:"format,omitempty"`
	Location  string    `bun:",nullzero" json:"location"`
	BatchID   *string   `json:"batch_id,omitempty"`
	CreatedBy *string   `json:"created_by,omitempty"`
}
