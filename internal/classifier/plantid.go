package classifier

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// DefaultPlantIDBaseURL is the Plant.id v3 API root.
const DefaultPlantIDBaseURL = "https://plant.id/api/v3"

// plantIDDetails are the suggestion details requested from Plant.id.
var plantIDDetails = []string{"common_names", "url", "description", "taxonomy"}

// PlantID calls the Plant.id v3 identification endpoint.
type PlantID struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPlantID creates a Plant.id client.
func NewPlantID(apiKey, baseURL string, client *http.Client) *PlantID {
	if baseURL == "" {
		baseURL = DefaultPlantIDBaseURL
	}
	return &PlantID{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name implements Classifier.
func (p *PlantID) Name() string { return "plantid" }

type plantIDRequest struct {
	Images        []string `json:"images"`
	SimilarImages bool     `json:"similar_images"`
}

type plantIDResponse struct {
	Result struct {
		IsPlant struct {
			Binary      *bool   `json:"binary"`
			Probability float64 `json:"probability"`
		} `json:"is_plant"`
		Classification struct {
			Suggestions []plantIDSuggestion `json:"suggestions"`
		} `json:"classification"`
	} `json:"result"`
}

type plantIDSuggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Details     struct {
		CommonNames []string `json:"common_names"`
		Description struct {
			Value string `json:"value"`
		} `json:"description"`
		Taxonomy struct {
			Kingdom string `json:"kingdom"`
			Class   string `json:"class"`
			Order   string `json:"order"`
			Family  string `json:"family"`
			Genus   string `json:"genus"`
		} `json:"taxonomy"`
	} `json:"details"`
}

// Classify implements Classifier.
func (p *PlantID) Classify(ctx context.Context, img *Image) (*Result, error) {
	endpoint := p.baseURL + "/identification?details=" + url.QueryEscape(strings.Join(plantIDDetails, ","))

	var resp plantIDResponse
	err := postJSON(ctx, p.client, p.Name(), endpoint,
		map[string]string{"Api-Key": p.apiKey},
		plantIDRequest{Images: []string{img.DataURL()}, SimilarImages: true},
		&resp,
	)
	if err != nil {
		return nil, err
	}

	if b := resp.Result.IsPlant.Binary; b != nil && !*b {
		return nil, ErrNoPlantDetected
	}
	suggestions := resp.Result.Classification.Suggestions
	if len(suggestions) == 0 || suggestions[0].Name == "" {
		return nil, ErrNoPlantDetected
	}

	top := suggestions[0]
	return &Result{
		Provider:       p.Name(),
		ScientificName: top.Name,
		CommonNames:    top.Details.CommonNames,
		Probability:    top.Probability,
		Family:         top.Details.Taxonomy.Family,
		Description:    top.Details.Description.Value,
		Origin:         top.Details.Taxonomy.Kingdom,
		Type:           top.Details.Taxonomy.Class,
	}, nil
}
