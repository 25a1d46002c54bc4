package models

import "time"

// SystemSetting is a server-wide value kept across restarts, such as the
// household id or a generated token secret. Key is stored in setting_key; key is
// a reserved word in MySQL.
type SystemSetting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
