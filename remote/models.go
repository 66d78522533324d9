package remote

import (
	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/player"
)

// StatusResponse is the JSON rendition of player.Status.
type StatusResponse struct {
	State      string `json:"state"`
	Output     string `json:"output"`
	Repeat     string `json:"repeat"`
	Volume     int    `json:"volume"`
	DeEmphasis bool   `json:"deemphasis"`
	Emphasis   bool   `json:"emphasis"`

	Track        int    `json:"track"`
	Index        uint16 `json:"index"`
	Sector       uint64 `json:"sector"`
	TotalTracks  int    `json:"total_tracks"`
	TotalIndexes int    `json:"total_indexes"`
	DiscTime     string `json:"disc_time"`
	TrackTime    string `json:"track_time"`
	TrackLength  string `json:"track_length"`
	Data         bool   `json:"data"`
	CopyAllowed  bool   `json:"copy_allowed"`
}

func newStatusResponse(s player.Status) StatusResponse {
	return StatusResponse{
		State:        s.State.String(),
		Output:       s.Output.String(),
		Repeat:       s.Repeat.String(),
		Volume:       s.Volume,
		DeEmphasis:   s.DeEmphasis,
		Emphasis:     s.Emphasis,
		Track:        s.Position.Track,
		Index:        s.Position.Index,
		Sector:       s.Position.Sector,
		TotalTracks:  s.Position.TotalTracks,
		TotalIndexes: s.Position.TotalIndexes,
		DiscTime:     s.DiscTime.String(),
		TrackTime:    s.TrackTime.String(),
		TrackLength:  disc.MSFFromSector(s.Position.TotalTime).String(),
		Data:         s.Position.Flags.Data,
		CopyAllowed:  s.Position.Flags.CopyAllowed,
	}
}

// TrackResponse describes one track of the loaded disc.
type TrackResponse struct {
	Number  int      `json:"number"`
	Session int      `json:"session"`
	Type    string   `json:"type"`
	Start   uint64   `json:"start"`
	Length  string   `json:"length"`
	Indexes []uint16 `json:"indexes"`
}

func newTrackResponse(t disc.Track) TrackResponse {
	return TrackResponse{
		Number:  t.Sequence,
		Session: t.Session,
		Type:    t.Type.String(),
		Start:   t.Start,
		Length:  disc.MSFFromSector(t.Length()).String(),
		Indexes: t.IndexNumbers(),
	}
}

// LoadRequest names an image for the controller's opener.
type LoadRequest struct {
	Path string `json:"path" binding:"required"`
}

// VolumeRequest sets the output volume.
type VolumeRequest struct {
	Volume *int `json:"volume" binding:"required"`
}

// RepeatRequest sets the repeat mode: none, single or all.
type RepeatRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// DeEmphasisRequest toggles the de-emphasis filter.
type DeEmphasisRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SeekRequest moves to an absolute sector or an MSF timecode relative to
// the start of the disc. Sector wins when both are given.
type SeekRequest struct {
	Sector *uint64 `json:"sector"`
	Time   string  `json:"time"`
}

// ErrorResponse is returned with every 4xx and 5xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
