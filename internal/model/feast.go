package model

import (
	"encoding/json"
	"strconv"
)

// Feast はホストの今年の誕生日テーブル（생일한상）を表す。
type Feast struct {
	UserID     ID     `json:"userId,omitempty"`
	BirthdayID ID     `json:"birthdayId"`
	Code       string `json:"code,omitempty"`
	Cards      []Card `json:"cards,omitempty"`
	Visible    *bool  `json:"visible,omitempty"`
}

// Card はゲストが残した飾り（メッセージ＋画像）を表示用に正規化したもの。
type Card struct {
	CardID   ID     `json:"cardId"`
	Message  string `json:"message"`
	Nickname string `json:"nickname"`
	ImageURL string `json:"imageUrl"`
}

// UnmarshalJSON はホスト用（message）とゲスト用（messageText）の両方の形を受け付ける。
// cardIdは数値・文字列どちらでも受け付ける。
func (c *Card) UnmarshalJSON(b []byte) error {
	var raw struct {
		CardID      ID     `json:"cardId"`
		Message     string `json:"message"`
		MessageText string `json:"messageText"`
		Nickname    string `json:"nickname"`
		NickName    string `json:"nickName"`
		ImageURL    string `json:"imageUrl"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	c.CardID = raw.CardID
	c.Message = raw.Message
	if c.Message == "" {
		c.Message = raw.MessageText
	}
	c.Nickname = raw.Nickname
	if c.Nickname == "" {
		c.Nickname = raw.NickName
	}
	c.ImageURL = raw.ImageURL
	return nil
}

// FeastSummary は一覧取得APIの1件を表す。
type FeastSummary struct {
	BirthdayID ID  `json:"birthdayId"`
	Year       int `json:"year,omitempty"`
}

// VisibilityPeriod は誕生日テーブルの公開期間を表す。
type VisibilityPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	IsVisible bool   `json:"isVisible"`
}

// CardImage はゲストがカードに使える画像素材を表す。
type CardImage struct {
	ImageID  ID     `json:"imageId,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl"`
}

// NewCard はゲストのカード投稿リクエストを表す。
type NewCard struct {
	MessageText string `json:"messageText"`
	ImageURL    string `json:"imageUrl"`
}

// ID はバックエンドの識別子を表す。
// バックエンドは数値で返すことも文字列で返すこともあるため、文字列に正規化して保持する。
type ID string

// String はIDの文字列表現を返す。
func (id ID) String() string { return string(id) }

// UnmarshalJSON は数値・文字列・nullのいずれも受け付ける。
func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON は数字のみからなるIDを数値として、それ以外を文字列として出力する。
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" {
		if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
			return []byte(id), nil
		}
	}
	return json.Marshal(string(id))
}
