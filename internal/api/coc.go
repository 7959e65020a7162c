package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Ericks2008/cocapi20250719/internal/config"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Client is the single-shot Clash of Clans API fetcher. It never retries;
// callers decide retry policy.
type Client struct {
	apiKey  string
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.APIBaseURL,
		logger:  logger,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) FetchPlayer(ctx context.Context, tag string) ([]byte, int) {
	return c.fetch(ctx, "/players/%23"+url.PathEscape(tag), "player", tag)
}

func (c *Client) FetchClan(ctx context.Context, tag string) ([]byte, int) {
	return c.fetch(ctx, "/clans/%23"+url.PathEscape(tag), "clan", tag)
}

func (c *Client) FetchCurrentWar(ctx context.Context, tag string) ([]byte, int) {
	return c.fetch(ctx, "/clans/%23"+url.PathEscape(tag)+"/currentwar", "currentwar", tag)
}

func (c *Client) FetchWarLog(ctx context.Context, tag string) ([]byte, int) {
	return c.fetch(ctx, "/clans/%23"+url.PathEscape(tag)+"/warlog", "clanwarlog", tag)
}

func (c *Client) FetchLeagueGroup(ctx context.Context, tag string) ([]byte, int) {
	return c.fetch(ctx, "/clans/%23"+url.PathEscape(tag)+"/currentwar/leaguegroup", "leaguegroup", tag)
}

func (c *Client) FetchLeagueWar(ctx context.Context, warTag string) ([]byte, int) {
	return c.fetch(ctx, "/clanwarleagues/wars/%23"+url.PathEscape(warTag), "wartag", warTag)
}

// fetch performs one GET and classifies the outcome: a 200 with a valid
// JSON body comes back verbatim; an HTTP error with a decodable body is
// passed through with its status; everything else becomes a synthesized
// {"error": ...} body.
func (c *Client) fetch(ctx context.Context, path, dataType, tag string) ([]byte, int) {
	endpoint := c.baseURL + path
	c.logger.Info().Str("data_type", dataType).Str("tag", tag).Str("url", endpoint).Msg("fetching from CoC API")

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("data_type", dataType).Str("tag", tag).Msg("CoC API network error")
		return errorBody(fmt.Sprintf("Network error when connecting to CoC API: %v", err)), fasthttp.StatusServiceUnavailable
	}

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)

	if status != fasthttp.StatusOK {
		c.logger.Warn().Int("status", status).Str("data_type", dataType).Str("tag", tag).Msg("CoC API HTTP error")
		if json.Valid(body) {
			// Pass the upstream error body through verbatim.
			return body, status
		}
		return errorBody(fmt.Sprintf("Failed to fetch %s %s. CoC API returned status %d", dataType, tag, status)), status
	}

	if !json.Valid(body) {
		c.logger.Error().Str("data_type", dataType).Str("tag", tag).Msg("CoC API returned malformed JSON")
		return errorBody(fmt.Sprintf("CoC API returned malformed data for %s %s", dataType, tag)), fasthttp.StatusInternalServerError
	}

	return body, fasthttp.StatusOK
}

func errorBody(msg string) []byte {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return body
}
