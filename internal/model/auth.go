package model

import "time"

type PairRequest struct {
	DeviceName string `json:"deviceName"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	PublicKey  string `json:"publicKey"`
}

type PairResponse struct {
	Success    bool       `json:"success"`
	Token      string     `json:"token,omitempty"`
	Error      string     `json:"error,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ServerName string     `json:"serverName"`
	ServerID   string     `json:"serverId"`
}

type AuthToken struct {
	Token      string    `json:"token"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (t AuthToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

type PairedDevice struct {
	DeviceID      string    `json:"deviceId"`
	DeviceName    string    `json:"deviceName"`
	DeviceType    string    `json:"deviceType"`
	PairedAt      time.Time `json:"pairedAt"`
	LastConnected time.Time `json:"lastConnected"`
	IPAddress     string    `json:"ipAddress"`
	IsActive      bool      `json:"isActive"`
}

type PairingCodeResponse struct {
	Code       string `json:"code"`
	ExpiresIn  int    `json:"expiresIn"`
	ServerName string `json:"serverName"`
}
