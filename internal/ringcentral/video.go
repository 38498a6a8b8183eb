package ringcentral

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// VideoMeeting is one meeting from the video history endpoint.
type VideoMeeting struct {
	ID              string
	Title           string
	HostName        string
	HostEmail       string
	HostExtensionID string
	StartTime       time.Time
	EndTime         time.Time
	Duration        float64
	Participants    []VideoParticipant
	Recordings      []VideoRecordingRef
}

// VideoParticipant is one attendee with join/leave times when the provider
// reports them.
type VideoParticipant struct {
	Name        string
	Email       string
	ExtensionID string
	JoinTime    *time.Time
	LeaveTime   *time.Time
}

// VideoRecordingRef points at a downloadable meeting recording.
type VideoRecordingRef struct {
	ID          string
	DownloadURI string
	MediaLink   string
	Duration    float64
}

type videoParticipantJSON struct {
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	ExtensionID string     `json:"extensionId"`
	JoinTime    *time.Time `json:"joinTime"`
	LeaveTime   *time.Time `json:"leaveTime"`
}

type videoRecordingJSON struct {
	ID          string  `json:"id"`
	DownloadURI string  `json:"downloadUri"`
	MediaLink   string  `json:"mediaLink"`
	Duration    float64 `json:"duration"`
}

type videoMeetingJSON struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"displayName"`
	HostInfo     struct {
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
		ExtensionID string `json:"extensionId"`
	} `json:"hostInfo"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	Duration     float64                `json:"duration"`
	Participants []videoParticipantJSON `json:"participants"`
	Recordings   []videoRecordingJSON   `json:"recordings"`
}

type videoHistoryPage struct {
	Meetings []videoMeetingJSON `json:"meetings"`
	Paging   struct {
		PageToken string `json:"pageToken"`
	} `json:"paging"`
}

func toVideoMeeting(m videoMeetingJSON) VideoMeeting {
	vm := VideoMeeting{
		ID:              m.ID,
		Title:           m.DisplayName,
		HostName:        m.HostInfo.DisplayName,
		HostEmail:       m.HostInfo.Email,
		HostExtensionID: m.HostInfo.ExtensionID,
		StartTime:       m.StartTime.UTC(),
		EndTime:         m.EndTime.UTC(),
		Duration:        m.Duration,
	}
	for _, p := range m.Participants {
		vm.Participants = append(vm.Participants, VideoParticipant{
			Name:        p.DisplayName,
			Email:       p.Email,
			ExtensionID: p.ExtensionID,
			JoinTime:    p.JoinTime,
			LeaveTime:   p.LeaveTime,
		})
	}
	for _, r := range m.Recordings {
		vm.Recordings = append(vm.Recordings, VideoRecordingRef{
			ID:          r.ID,
			DownloadURI: r.DownloadURI,
			MediaLink:   r.MediaLink,
			Duration:    r.Duration,
		})
	}
	return vm
}

// FetchVideoMeetings enumerates meeting history in [start, end], paginating
// by pageToken with a per-page rate-limit sleep.
func (c *Client) FetchVideoMeetings(ctx context.Context, start, end time.Time) ([]VideoMeeting, error) {
	var out []VideoMeeting

	pageToken := ""
	for {
		q := url.Values{
			"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(end.UnixMilli(), 10)},
			"perPage":   {"100"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var pg videoHistoryPage
		if err := c.getJSON(ctx, "/rcvideo/v1/history/meetings", q, &pg); err != nil {
			return out, fmt.Errorf("video history: %w", err)
		}
		for _, m := range pg.Meetings {
			out = append(out, toVideoMeeting(m))
		}

		if pg.Paging.PageToken == "" {
			break
		}
		pageToken = pg.Paging.PageToken

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(pageSleep):
		}
	}
	return out, nil
}

type accountRecordingsPage struct {
	Recordings []struct {
		videoRecordingJSON
		MeetingID   string `json:"meetingId"`
		DisplayName string `json:"displayName"`
		HostInfo    struct {
			DisplayName string `json:"displayName"`
			Email       string `json:"email"`
			ExtensionID string `json:"extensionId"`
		} `json:"hostInfo"`
		StartTime time.Time `json:"startTime"`
	} `json:"recordings"`
	Paging struct {
		PageToken string `json:"pageToken"`
	} `json:"paging"`
}

// AccountRecording is an account-level video recording used as a fallback
// when meeting history is empty but recordings exist.
type AccountRecording struct {
	VideoRecordingRef
	MeetingID       string
	Title           string
	HostName        string
	HostEmail       string
	HostExtensionID string
	StartTime       time.Time
}

// FetchAccountRecordings lists account-level video recordings directly.
func (c *Client) FetchAccountRecordings(ctx context.Context, limit int) ([]AccountRecording, error) {
	var out []AccountRecording

	pageToken := ""
	for len(out) < limit {
		q := url.Values{"perPage": {"100"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var pg accountRecordingsPage
		if err := c.getJSON(ctx, "/rcvideo/v1/account/~/recordings", q, &pg); err != nil {
			return out, fmt.Errorf("account recordings: %w", err)
		}
		for _, r := range pg.Recordings {
			out = append(out, AccountRecording{
				VideoRecordingRef: VideoRecordingRef{
					ID:          r.ID,
					DownloadURI: r.DownloadURI,
					MediaLink:   r.MediaLink,
					Duration:    r.Duration,
				},
				MeetingID:       r.MeetingID,
				Title:           r.DisplayName,
				HostName:        r.HostInfo.DisplayName,
				HostEmail:       r.HostInfo.Email,
				HostExtensionID: r.HostInfo.ExtensionID,
				StartTime:       r.StartTime.UTC(),
			})
		}

		if pg.Paging.PageToken == "" {
			break
		}
		pageToken = pg.Paging.PageToken

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(pageSleep):
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
