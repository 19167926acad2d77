// Package upload publishes finished videos to YouTube via the Data API v3.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/storyreel/storyreel/config"
	"github.com/storyreel/storyreel/story"
)

// Uploader handles the OAuth2 flow and the resumable video upload.
type Uploader struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Uploader {
	return &Uploader{cfg: cfg, logger: logger}
}

// Upload pushes the final video and returns its watch URL.
func (u *Uploader) Upload(ctx context.Context, video *story.FinalVideo, s *story.Story) (string, error) {
	client, err := u.oauthClient(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	u.logger.Info("Uploading video", slog.String("title", video.Title))

	yv := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       video.Title,
			Description: buildDescription(video, s),
			CategoryId:  "24", // Entertainment
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: u.cfg.YouTubePrivacy,
		},
	}

	f, err := os.Open(video.OutputPath)
	if err != nil {
		return "", fmt.Errorf("opening video file: %w", err)
	}
	defer f.Close()

	// Resumable upload is required for anything over 5MB.
	call := svc.Videos.Insert([]string{"snippet", "status"}, yv)
	call.Media(f)

	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	u.logger.Info("Upload finished",
		slog.String("video_id", uploaded.Id),
		slog.String("url", url))
	return url, nil
}

// oauthClient builds an authenticated HTTP client from the client secrets
// file and a previously cached token.
func (u *Uploader) oauthClient(ctx context.Context) (*http.Client, error) {
	secrets, err := os.ReadFile(u.cfg.YouTubeClientSecrets)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets: %w", err)
	}
	conf, err := google.ConfigFromJSON(secrets, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}

	token, err := loadToken(u.cfg.YouTubeTokenFile)
	if err != nil {
		return nil, fmt.Errorf("no cached token, run the authorization flow first: %w", err)
	}

	return conf.Client(ctx, token), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	return &token, nil
}

// buildDescription renders the synopsis plus chapter timestamps, which
// YouTube turns into clickable chapters.
func buildDescription(video *story.FinalVideo, s *story.Story) string {
	var b strings.Builder
	if s.Synopsis != "" {
		b.WriteString(s.Synopsis)
		b.WriteString("\n\n")
	}
	for _, ch := range video.Chapters {
		total := int(ch.StartSeconds)
		fmt.Fprintf(&b, "%02d:%02d %s\n", total/60, total%60, ch.Title)
	}
	return b.String()
}
