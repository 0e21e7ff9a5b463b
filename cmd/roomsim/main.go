// Command roomsim drives listener sessions against a running server: one DJ
// plays a track, a share of the listeners vote it lame, and every session
// races to crowd-skip it. Exactly one skip should land.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/listening-room-system/pkg/jwt"
	"github.com/listening-room-system/pkg/models"
	"github.com/listening-room-system/pkg/roomclient"
)

type participant struct {
	id      uuid.UUID
	client  *roomclient.Client
	session *roomclient.Session
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1", "api base url")
	secret := flag.String("secret", "your-secret-key", "JWT_SECRET of the server")
	listeners := flag.Int("listeners", 20, "number of listener sessions")
	lameShare := flag.Float64("lame", 0.6, "share of listeners voting lame")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dj := join(ctx, *baseURL, *secret, "sim-dj", uuid.Nil)
	room, err := dj.client.CreateRoom(ctx, fmt.Sprintf("roomsim %s", time.Now().Format("15:04:05")), nil)
	if err != nil {
		log.Fatalf("Create room failed: %v", err)
	}
	log.Printf("Room %s (%s)", room.Slug, room.ID)

	if _, err := dj.client.ClaimSpot(ctx, room.ID); err != nil {
		log.Fatalf("Claim failed: %v", err)
	}
	next := models.TrackInfo{Source: models.SourceYouTube, VideoID: "9bZkp7q19f0", TrackURL: "https://www.youtube.com/watch?v=9bZkp7q19f0", Title: "queued"}
	if _, err := dj.client.UpdateSongs(ctx, room.ID, []models.TrackInfo{next}); err != nil {
		log.Fatalf("Queue songs failed: %v", err)
	}
	first := models.TrackInfo{Source: models.SourceYouTube, VideoID: "dQw4w9WgXcQ", TrackURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Title: "doomed"}
	if _, err := dj.client.Play(ctx, room.ID, first); err != nil {
		log.Fatalf("Play failed: %v", err)
	}

	crowd := make([]participant, *listeners)
	for i := range crowd {
		crowd[i] = join(ctx, *baseURL, *secret, fmt.Sprintf("sim-%d", i), room.ID)
		if err := crowd[i].client.Heartbeat(ctx, room.ID); err != nil {
			log.Fatalf("Heartbeat failed: %v", err)
		}
	}
	voters := int(float64(*listeners) * *lameShare)
	for i := 0; i < voters; i++ {
		if _, err := crowd[i].session.Vote(ctx, models.VoteLame); err != nil {
			log.Fatalf("Vote failed: %v", err)
		}
	}
	log.Printf("%d listeners, %d lame votes", *listeners, voters)

	var (
		wg     sync.WaitGroup
		landed int32
	)
	start := time.Now()
	for _, p := range crowd {
		wg.Add(1)
		go func(p participant) {
			defer wg.Done()
			result, err := p.client.Skip(ctx, room.ID, first.TrackURL)
			if err == nil && result != nil {
				atomic.AddInt32(&landed, 1)
			}
		}(p)
	}
	wg.Wait()

	snap, err := dj.client.Snapshot(ctx, room.ID)
	if err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
	playing := "nothing"
	if t := snap.Room.CurrentTrack(); t != nil {
		playing = t.Title
	}
	log.Printf("%d concurrent skips in %s: %d landed, now playing %q", len(crowd), time.Since(start), landed, playing)
	if landed != 1 && voters > 0 {
		log.Fatalf("Expected exactly one skip to land")
	}
}

func join(ctx context.Context, baseURL, secret, name string, roomID uuid.UUID) participant {
	id := uuid.New()
	token, err := jwt.GenerateToken(id.String(), name+"-"+id.String()[:6], secret, time.Hour)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	client := roomclient.New(baseURL, token, nil)
	if _, err := client.Me(ctx); err != nil {
		log.Fatalf("Login for %s failed: %v", name, err)
	}
	return participant{id: id, client: client, session: roomclient.NewSession(client, roomID, id)}
}
