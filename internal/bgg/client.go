// Package bgg is a client for the BoardGameGeek XML API v2. It covers
// the endpoints the bot needs: collection export, game search, thing
// details, and expansion lookups.
package bgg

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"game-night-bot/internal/config"
	"game-night-bot/internal/model"
	"game-night-bot/internal/pkg/retry"
)

// Sentinel errors for API outcomes callers branch on.
var (
	// ErrUserNotFound means BGG has no user with the given name.
	ErrUserNotFound = errors.New("bgg user not found")
	// ErrQueued means the collection export is still being generated.
	// The client retries these internally and surfaces ErrQueued only
	// when the retry budget runs out.
	ErrQueued = errors.New("bgg collection export queued")
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client talks to the BGG XML API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	queueRetry retry.Policy
}

// NewClient builds a client from configuration. token may be empty;
// BGG serves anonymous requests at a lower rate limit.
func NewClient(cfg *config.BGGConfig, token string) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		queueRetry: retry.Linear(cfg.CollectionRetries, cfg.CollectionBackoff).
			WithRetryable(func(err error) bool { return errors.Is(err, ErrQueued) }),
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// collectionXML mirrors the /collection response.
type collectionXML struct {
	Items []collectionItemXML `xml:"item"`
}

type collectionItemXML struct {
	ObjectID  int64   `xml:"objectid,attr"`
	Name      string  `xml:"name"`
	Thumbnail *string `xml:"thumbnail"`
	Status    *struct {
		Own string `xml:"own,attr"`
	} `xml:"status"`
	Stats *struct {
		MinPlayers  int `xml:"minplayers,attr"`
		MaxPlayers  int `xml:"maxplayers,attr"`
		PlayingTime int `xml:"playingtime,attr"`
		MinPlayTime int `xml:"minplaytime,attr"`
		MaxPlayTime int `xml:"maxplaytime,attr"`
		Rating      *struct {
			AverageWeight *struct {
				Value float64 `xml:"value,attr"`
			} `xml:"averageweight"`
		} `xml:"rating"`
	} `xml:"stats"`
}

// FetchCollection fetches a user's owned base games with stats.
// Expansions are excluded; FetchOwnedExpansions lists those. Collection
// exports are generated asynchronously by BGG, so queued responses are
// retried with backoff before giving up with ErrQueued.
func (c *Client) FetchCollection(ctx context.Context, username string) ([]*model.Game, error) {
	params := url.Values{
		"username":       {username},
		"own":            {"1"},
		"stats":          {"1"},
		"excludesubtype": {"boardgameexpansion"},
	}

	var games []*model.Game
	err := c.queueRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		games, err = c.fetchCollectionOnce(ctx, params)
		if errors.Is(err, ErrQueued) {
			log.Warn().Str("username", username).Msg("BGG collection export queued, retrying")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return games, nil
}

func (c *Client) fetchCollectionOnce(ctx context.Context, params url.Values) ([]*model.Game, error) {
	resp, err := c.get(ctx, "/collection", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil, ErrQueued
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("unexpected collection status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection response: %w", err)
	}

	var parsed collectionXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse collection XML: %w", err)
	}

	games := make([]*model.Game, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Stats == nil {
			continue
		}
		if item.Status != nil && item.Status.Own != "1" {
			continue
		}

		g := &model.Game{
			ID:          item.ObjectID,
			Name:        item.Name,
			MinPlayers:  item.Stats.MinPlayers,
			MaxPlayers:  item.Stats.MaxPlayers,
			PlayingTime: item.Stats.PlayingTime,
			Thumbnail:   item.Thumbnail,
		}
		if item.Stats.MinPlayTime > 0 {
			v := item.Stats.MinPlayTime
			g.MinPlayingTime = &v
		}
		if item.Stats.MaxPlayTime > 0 {
			v := item.Stats.MaxPlayTime
			g.MaxPlayingTime = &v
		}
		if item.Stats.Rating != nil && item.Stats.Rating.AverageWeight != nil {
			g.Complexity = item.Stats.Rating.AverageWeight.Value
		}
		games = append(games, g)
	}
	return games, nil
}

// SearchResult is one hit from the search endpoint.
type SearchResult struct {
	ID            int64
	Name          string
	YearPublished string
}

type searchXML struct {
	Items []struct {
		ID   int64 `xml:"id,attr"`
		Name *struct {
			Value string `xml:"value,attr"`
		} `xml:"name"`
		YearPublished *struct {
			Value string `xml:"value,attr"`
		} `xml:"yearpublished"`
	} `xml:"item"`
}

// Search looks up board games by name, returning at most limit hits.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{
		"query": {query},
		"type":  {"boardgame"},
	}
	resp, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected search status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed searchXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search XML: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, item := range parsed.Items {
		if len(results) >= limit {
			break
		}
		r := SearchResult{ID: item.ID, Name: "Unknown"}
		if item.Name != nil {
			r.Name = item.Name.Value
		}
		if item.YearPublished != nil {
			r.YearPublished = item.YearPublished.Value
		}
		results = append(results, r)
	}
	return results, nil
}

// thingXML mirrors the /thing response for both games and expansions.
type thingXML struct {
	Items []thingItemXML `xml:"item"`
}

type thingItemXML struct {
	ID    int64 `xml:"id,attr"`
	Names []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:"value,attr"`
	} `xml:"name"`
	Thumbnail  *string   `xml:"thumbnail"`
	MinPlayers *valueInt `xml:"minplayers"`
	MaxPlayers *valueInt `xml:"maxplayers"`
	PlayTime   *valueInt `xml:"playingtime"`
	MinPlay    *valueInt `xml:"minplaytime"`
	MaxPlay    *valueInt `xml:"maxplaytime"`
	Links      []struct {
		Type    string `xml:"type,attr"`
		ID      int64  `xml:"id,attr"`
		Inbound string `xml:"inbound,attr"`
	} `xml:"link"`
	Statistics *struct {
		Ratings *struct {
			AverageWeight *struct {
				Value string `xml:"value,attr"`
			} `xml:"averageweight"`
		} `xml:"ratings"`
	} `xml:"statistics"`
}

type valueInt struct {
	Value int `xml:"value,attr"`
}

func (t *thingItemXML) primaryName() string {
	for _, n := range t.Names {
		if n.Type == "primary" {
			return n.Value
		}
	}
	return "Unknown"
}

func (t *thingItemXML) complexity() float64 {
	if t.Statistics == nil || t.Statistics.Ratings == nil || t.Statistics.Ratings.AverageWeight == nil {
		return 0
	}
	c, err := strconv.ParseFloat(t.Statistics.Ratings.AverageWeight.Value, 64)
	if err != nil {
		return 0
	}
	return c
}

func (c *Client) fetchThing(ctx context.Context, id int64) (*thingItemXML, error) {
	params := url.Values{
		"id":    {strconv.FormatInt(id, 10)},
		"stats": {"1"},
	}
	resp, err := c.get(ctx, "/thing", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thing %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected thing status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read thing response: %w", err)
	}

	var parsed thingXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse thing XML: %w", err)
	}
	if len(parsed.Items) == 0 {
		return nil, nil
	}
	return &parsed.Items[0], nil
}

// GameDetails fetches full stats for one game. Returns nil when the ID
// is unknown to BGG.
func (c *Client) GameDetails(ctx context.Context, bggID int64) (*model.Game, error) {
	item, err := c.fetchThing(ctx, bggID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	g := &model.Game{
		ID:         bggID,
		Name:       item.primaryName(),
		MinPlayers: 1,
		MaxPlayers: 6,
		Complexity: item.complexity(),
		Thumbnail:  item.Thumbnail,
	}
	if item.MinPlayers != nil {
		g.MinPlayers = item.MinPlayers.Value
	}
	if item.MaxPlayers != nil {
		g.MaxPlayers = item.MaxPlayers.Value
	}
	if item.PlayTime != nil {
		g.PlayingTime = item.PlayTime.Value
	}
	if item.MinPlay != nil && item.MinPlay.Value > 0 {
		v := item.MinPlay.Value
		g.MinPlayingTime = &v
	}
	if item.MaxPlay != nil && item.MaxPlay.Value > 0 {
		v := item.MaxPlay.Value
		g.MaxPlayingTime = &v
	}
	return g, nil
}

// OwnedExpansion is a bare expansion entry from a user's collection.
type OwnedExpansion struct {
	ID   int64
	Name string
}

// FetchOwnedExpansions fetches the expansions a user owns. Missing
// users yield an empty list rather than an error; the base collection
// fetch has already validated the username.
func (c *Client) FetchOwnedExpansions(ctx context.Context, username string) ([]OwnedExpansion, error) {
	params := url.Values{
		"username": {username},
		"own":      {"1"},
		"subtype":  {"boardgameexpansion"},
	}

	var expansions []OwnedExpansion
	err := c.queueRetry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.get(ctx, "/collection", params)
		if err != nil {
			return fmt.Errorf("failed to fetch expansions: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			return ErrQueued
		case http.StatusNotFound:
			expansions = nil
			return nil
		case http.StatusOK:
		default:
			return fmt.Errorf("unexpected expansion collection status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read expansion response: %w", err)
		}

		var parsed collectionXML
		if err := xml.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("failed to parse expansion XML: %w", err)
		}

		expansions = make([]OwnedExpansion, 0, len(parsed.Items))
		for _, item := range parsed.Items {
			if item.Status != nil && item.Status.Own != "1" {
				continue
			}
			expansions = append(expansions, OwnedExpansion{ID: item.ObjectID, Name: item.Name})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQueued) {
			return nil, nil
		}
		return nil, err
	}
	return expansions, nil
}

// ExpansionInfo describes how an expansion modifies its base game.
type ExpansionInfo struct {
	ID            int64
	Name          string
	BaseGameID    *int64
	NewMaxPlayers *int
	Complexity    *float64
}

// GetExpansionInfo fetches expansion details including the base game
// link and the expanded player count. Returns nil for unknown IDs.
func (c *Client) GetExpansionInfo(ctx context.Context, expansionID int64) (*ExpansionInfo, error) {
	item, err := c.fetchThing(ctx, expansionID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	info := &ExpansionInfo{ID: expansionID, Name: item.primaryName()}
	if item.MaxPlayers != nil && item.MaxPlayers.Value > 0 {
		v := item.MaxPlayers.Value
		info.NewMaxPlayers = &v
	}
	// The base game appears as an inbound expansion link: the game
	// that this item expands.
	for _, link := range item.Links {
		if link.Type == "boardgameexpansion" && link.Inbound == "true" {
			id := link.ID
			info.BaseGameID = &id
			break
		}
	}
	if w := item.complexity(); w > 0 {
		info.Complexity = &w
	}
	return info, nil
}
