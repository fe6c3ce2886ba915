// models/gorm_models.go
package models

import (
	"time"
)

// GormPlayer 玩家表
type GormPlayer struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	NameKey   string    `gorm:"uniqueIndex;not null"` // 大小写折叠后的名字
	CreatedAt time.Time `gorm:"not null"`
}

func (GormPlayer) TableName() string { return "players" }

// GormGroup 分组表
type GormGroup struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (GormGroup) TableName() string { return "player_groups" }

// GormGroupMember 玩家-分组关联
type GormGroupMember struct {
	PlayerID int64      `gorm:"primaryKey;autoIncrement:false"`
	GroupID  int64      `gorm:"primaryKey;autoIncrement:false;index"`
	Player   GormPlayer `gorm:"foreignKey:PlayerID;constraint:OnDelete:CASCADE"`
	Group    GormGroup  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

func (GormGroupMember) TableName() string { return "group_members" }

// GormGame 对局表
type GormGame struct {
	ID                int64     `gorm:"primaryKey"`
	StartDate         time.Time `gorm:"uniqueIndex;not null"`
	CurrentTurnNumber int       `gorm:"not null;default:1"`
	Ended             bool      `gorm:"not null;default:false"`
}

func (GormGame) TableName() string { return "games" }

// GormGamePlayer 对局座位; players with history cannot be deleted
type GormGamePlayer struct {
	GameID   int64      `gorm:"primaryKey;autoIncrement:false"`
	PlayerID int64      `gorm:"primaryKey;autoIncrement:false;index"`
	Position int        `gorm:"not null"`
	Game     GormGame   `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Player   GormPlayer `gorm:"foreignKey:PlayerID;constraint:OnDelete:RESTRICT"`
}

func (GormGamePlayer) TableName() string { return "game_players" }

// GormTurn 回合表
type GormTurn struct {
	ID     int64    `gorm:"primaryKey"`
	GameID int64    `gorm:"not null;uniqueIndex:idx_turn_game_number"`
	Number int      `gorm:"not null;uniqueIndex:idx_turn_game_number"`
	Game   GormGame `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

func (GormTurn) TableName() string { return "turns" }

// GormTurnResult 回合结果
type GormTurnResult struct {
	TurnID       int64      `gorm:"primaryKey;autoIncrement:false"`
	PlayerID     int64      `gorm:"primaryKey;autoIncrement:false;index"`
	Declaration  *int
	Result       *int
	HasSkullKing *bool
	PirateCount  *int
	HasMermaid   *bool
	Turn         GormTurn   `gorm:"foreignKey:TurnID;constraint:OnDelete:CASCADE"`
	Player       GormPlayer `gorm:"foreignKey:PlayerID;constraint:OnDelete:RESTRICT"`
}

func (GormTurnResult) TableName() string { return "turn_results" }
