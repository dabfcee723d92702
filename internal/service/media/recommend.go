// Package media implements the optional recommendation stage: a web
// search keyed on the user's sentiment and language, reduced to a
// single "title: URL" line for the prompt. Every failure in the chain
// degrades to a fixed placeholder; nothing here can fail a turn.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"polychat/internal/models"
)

// Placeholder is returned whenever no recommendation could be fetched.
const Placeholder = "unable to fetch recommendation"

const fetchTimeout = 10 * time.Second

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+`)

// searchRunner is the slice of tool.InvokableTool the recommender
// needs; narrowed for test doubles.
type searchRunner interface {
	InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error)
}

// Recommender queries external search providers and resolves a page
// title for the first URL found.
type Recommender struct {
	google     searchRunner
	duck       searchRunner
	httpClient *http.Client
}

// NewRecommender wires the search providers: google when credentials
// are present, duckduckgo as the fallback that needs no token.
func NewRecommender(ctx context.Context) (*Recommender, error) {
	r := &Recommender{
		httpClient: &http.Client{Timeout: fetchTimeout},
	}

	if apiKey, engineID := os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_SEARCH_ENGINE_ID"); apiKey != "" && engineID != "" {
		googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
			ToolName:       "media_search_google",
			ToolDesc:       "Google Search Tool",
			APIKey:         apiKey,
			SearchEngineID: engineID,
			Lang:           "en",
			Num:            5,
		})
		if err != nil {
			return nil, fmt.Errorf("init google search: %w", err)
		}
		r.google = googleTool
	}

	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "media_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    fetchTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init duckduckgo search: %w", err)
	}
	r.duck = duckTool

	return r, nil
}

// Recommend returns a "title: URL" line for a video matching the
// user's mood, or Placeholder when the chain fails at any step.
func (r *Recommender) Recommend(ctx context.Context, sentiment models.Sentiment, language string) string {
	query := queryFor(sentiment, language)
	if query == "" {
		return Placeholder
	}

	result, err := r.runSearch(ctx, query)
	if err != nil {
		log.Printf("media search failed: %v", err)
		return Placeholder
	}

	link := urlPattern.FindString(result)
	if link == "" {
		log.Printf("media search returned no URL")
		return Placeholder
	}
	link = strings.TrimRight(link, ",.)]")

	title, err := r.pageTitle(ctx, link)
	if err != nil {
		log.Printf("fetch media title failed: %v", err)
		return Placeholder
	}
	return fmt.Sprintf("%s: %s", title, link)
}

// queryFor picks a search query by sentiment, in Spanish or English
// depending on the user's preferred language. Neutral turns get no
// recommendation.
func queryFor(sentiment models.Sentiment, language string) string {
	spanish := strings.Contains(strings.ToLower(language), "spanish")
	switch sentiment {
	case models.SentimentNegative:
		if spanish {
			return "canciones motivacionales para animarse"
		}
		return "uplifting videos to cheer up"
	case models.SentimentPositive:
		if spanish {
			return "canciones divertidas para estar feliz"
		}
		return "funny videos to stay happy"
	default:
		return ""
	}
}

func (r *Recommender) runSearch(ctx context.Context, query string) (string, error) {
	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if r.google != nil {
		if result, err := r.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}
	if r.duck != nil {
		if result, err := r.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

func (r *Recommender) pageTitle(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build title request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", errors.New("page has no title")
	}
	return title, nil
}
