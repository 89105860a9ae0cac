// Package earthengine implements the imagery backend on the Earth Engine REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"google.golang.org/api/googleapi"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// DefaultBaseURL is the Earth Engine REST endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

// maxPixels is sent as an int64 string, as the API expects.
const maxPixels = "10000000000000"

// DestinationType selects where exports are written.
type DestinationType string

// Export destinations.
const (
	DestinationDrive DestinationType = "drive"
	DestinationGCS   DestinationType = "gcs"
)

// Config holds Earth Engine client configuration.
type Config struct {
	BaseURL     string
	Project     string
	Destination DestinationType
	Bucket      string // Required for DestinationGCS
}

// Client is an Earth Engine REST client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// Ensure Client implements the imagery backend port.
var _ output.ImageryBackend = (*Client)(nil)

// NewClient creates a new Earth Engine client. httpClient must carry the
// OAuth2 credentials.
func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, &domain.ConfigError{Field: "earthengine.project", Message: "is required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	switch cfg.Destination {
	case "":
		cfg.Destination = DestinationDrive
	case DestinationDrive:
	case DestinationGCS:
		if cfg.Bucket == "" {
			return nil, &domain.ConfigError{Field: "staging.bucket", Message: "is required for gcs exports"}
		}
	default:
		return nil, &domain.ConfigError{Field: "staging.type", Message: "unsupported export destination: " + string(cfg.Destination)}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
	}, nil
}

type collectionHandle struct {
	images     Value
	collection *domain.Collection
}

func collectionFrom(ref domain.CollectionRef) (collectionHandle, error) {
	h, ok := ref.Handle.(collectionHandle)
	if !ok {
		return collectionHandle{}, fmt.Errorf("earthengine: unexpected collection handle %T: %w", ref.Handle, domain.ErrInvalidInput)
	}
	return h, nil
}

func imageFrom(ref domain.ImageRef) (Value, error) {
	v, ok := ref.Handle.(Value)
	if !ok {
		return Value{}, fmt.Errorf("earthengine: unexpected image handle %T: %w", ref.Handle, domain.ErrInvalidInput)
	}
	return v, nil
}

// ImageCollection implements output.ImageryBackend.
func (c *Client) ImageCollection(_ context.Context, filter domain.CollectionFilter) (domain.CollectionRef, error) {
	def := filter.Collection
	if def == nil {
		return domain.CollectionRef{}, fmt.Errorf("earthengine: %w", domain.ErrUnknownCollection)
	}

	images := loadCollection(def.AssetID)
	images = filterCollection(images, Invoke("Filter.intersects", map[string]Value{
		"leftField":  Constant(".all"),
		"rightValue": bboxGeometry(filter.Bounds),
	}))
	images = filterCollection(images, Invoke("Filter.dateRangeContains", map[string]Value{
		"leftValue":  dateRange(filter.Interval),
		"rightField": Constant("system:time_start"),
	}))

	switch def.CloudMask {
	case domain.MaskCloudScore:
		images = Invoke("ImageCollection.linkCollection", map[string]Value{
			"input":           images,
			"otherCollection": loadCollection(def.CloudScoreAsset),
			"linkedBands":     Constant([]string{def.CloudScoreBand}),
		})
		img := Argument("image")
		images = mapCollection(images, "image", Invoke("Image.updateMask", map[string]Value{
			"image": img,
			"mask":  binary("Image.gte", selectBands(img, def.CloudScoreBand), imageConstant(filter.CloudScoreThreshold)),
		}))

	case domain.MaskQABits:
		img := Argument("image")
		qa := selectBands(img, def.QABand)
		unset := func(bit int) Value {
			return binary("Image.eq", binary("Image.bitwiseAnd", qa, imageConstant(1<<bit)), imageConstant(0))
		}
		masked := Invoke("Image.updateMask", map[string]Value{
			"image": img,
			"mask":  binary("Image.and", unset(3), unset(5)),
		})
		if def.Reflectance > 0 {
			masked = binary("Image.divide", masked, imageConstant(def.Reflectance))
		}
		images = mapCollection(images, "image", Invoke("Element.copyProperties", map[string]Value{
			"destination": masked,
			"source":      img,
			"properties":  Constant([]string{"system:time_start"}),
		}))
	}

	return domain.CollectionRef{Handle: collectionHandle{images: images, collection: def}}, nil
}

// CollectionSize implements output.ImageryBackend.
func (c *Client) CollectionSize(ctx context.Context, ref domain.CollectionRef) (int, error) {
	h, err := collectionFrom(ref)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Result float64 `json:"result"`
	}
	size := Invoke("Collection.size", map[string]Value{"collection": h.images})
	if err := c.do(ctx, http.MethodPost, c.projectURL("value:compute"), map[string]any{"expression": size}, &resp); err != nil {
		return 0, fmt.Errorf("computing collection size: %w", err)
	}
	return int(resp.Result), nil
}

// Composite implements output.ImageryBackend.
func (c *Client) Composite(_ context.Context, ref domain.CollectionRef, aggregation domain.Aggregation, aoi *domain.AOI) (domain.ImageRef, error) {
	h, err := collectionFrom(ref)
	if err != nil {
		return domain.ImageRef{}, err
	}

	var reducer string
	switch aggregation {
	case domain.AggregationMedian:
		reducer = "reduce.median"
	case domain.AggregationMean:
		reducer = "reduce.mean"
	default:
		return domain.ImageRef{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedAggregation, aggregation)
	}

	features, err := featureCollection(aoi)
	if err != nil {
		return domain.ImageRef{}, err
	}

	composite := Invoke(reducer, map[string]Value{"collection": h.images})
	composite = Invoke("Image.clipToCollection", map[string]Value{
		"input":      composite,
		"collection": features,
	})
	return domain.ImageRef{Handle: composite}, nil
}

// ProductImage implements output.ImageryBackend.
func (c *Client) ProductImage(_ context.Context, compositeRef domain.ImageRef, ref domain.CollectionRef, product domain.Product, bounds orb.Bound) (domain.ImageRef, error) {
	h, err := collectionFrom(ref)
	if err != nil {
		return domain.ImageRef{}, err
	}
	composite, err := imageFrom(compositeRef)
	if err != nil {
		return domain.ImageRef{}, err
	}

	var image Value
	switch product.Kind {
	case domain.ProductIndex:
		def, ok := h.collection.Index(product.Name)
		if !ok {
			return domain.ImageRef{}, fmt.Errorf("%w: index %q", domain.ErrUnknownProduct, product.Name)
		}
		image = indexImage(composite, def)

	case domain.ProductBand:
		def, ok := h.collection.Band(product.Name)
		if !ok {
			return domain.ImageRef{}, fmt.Errorf("%w: band %q", domain.ErrUnknownProduct, product.Name)
		}
		image = selectBands(composite, def.Name)
		if def.Scale > 0 {
			image = unary("Image.toFloat", binary("Image.multiply", image, imageConstant(def.Scale)))
		}

	case domain.ProductCount:
		image = countImage(h, bounds)

	default:
		return domain.ImageRef{}, fmt.Errorf("%w: product kind %v", domain.ErrUnknownProduct, product.Kind)
	}

	return domain.ImageRef{Handle: image}, nil
}

func indexImage(composite Value, def domain.IndexDefinition) Value {
	image := composite
	for _, band := range def.Resample {
		image = Invoke("Image.addBands", map[string]Value{
			"dstImg": image,
			"srcImg": resample(composite, band, 10),
		})
	}

	var result Value
	switch def.Formula {
	case domain.FormulaMagnitude:
		a := selectBands(image, def.Bands[0])
		b := selectBands(image, def.Bands[1])
		result = unary("Image.sqrt", binary("Image.add",
			binary("Image.multiply", a, a),
			binary("Image.multiply", b, b),
		))
	default:
		result = Invoke("Image.normalizedDifference", map[string]Value{
			"input":     image,
			"bandNames": Constant(def.Bands[:]),
		})
	}
	return rename(result, def.Output)
}

func resample(image Value, band string, scale int) Value {
	b := selectBands(image, band)
	resampled := Invoke("Image.resample", map[string]Value{
		"image": b,
		"mode":  Constant("bilinear"),
	})
	reprojected := Invoke("Image.reproject", map[string]Value{
		"image": resampled,
		"crs":   Invoke("Image.projection", map[string]Value{"image": b}),
		"scale": Constant(scale),
	})
	return rename(reprojected, domain.ResampledName(band, scale))
}

func countImage(h collectionHandle, bounds orb.Bound) Value {
	observed := mapCollection(h.images, "image", selectBands(Argument("image"), h.collection.CountBand))
	count := Invoke("reduce.count", map[string]Value{"collection": observed})
	count = Invoke("Image.unmask", map[string]Value{
		"input": count,
		"value": Constant(0),
	})
	count = rename(count, domain.CountProduct)
	return Invoke("Image.clip", map[string]Value{
		"input":    count,
		"geometry": bboxGeometry(bounds),
	})
}

// SubmitExport implements output.ImageryBackend.
func (c *Client) SubmitExport(ctx context.Context, job domain.ExportJob) (domain.TaskHandle, error) {
	image, err := imageFrom(job.Image)
	if err != nil {
		return domain.TaskHandle{}, err
	}

	scaled := Invoke("Image.clipToBoundsAndScale", map[string]Value{
		"input":    image,
		"geometry": bboxGeometry(job.Partition.Bounds),
		"scale":    Constant(job.Resolution),
	})

	options := map[string]any{
		"fileFormat":     "GEO_TIFF",
		"geoTiffOptions": map[string]any{"cloudOptimized": true},
	}
	switch c.config.Destination {
	case DestinationGCS:
		options["cloudStorageDestination"] = map[string]any{
			"bucket":         c.config.Bucket,
			"filenamePrefix": path.Join(job.Folder, job.Name),
		}
	default:
		options["driveDestination"] = map[string]any{
			"folder":         job.Folder,
			"filenamePrefix": job.Name,
		}
	}

	body := map[string]any{
		"expression":        scaled,
		"description":       job.Name,
		"fileExportOptions": options,
		"maxPixels":         maxPixels,
	}

	var op operation
	if err := c.do(ctx, http.MethodPost, c.projectURL("image:export"), body, &op); err != nil {
		return domain.TaskHandle{}, fmt.Errorf("starting export %s: %w", job.Name, err)
	}

	c.logger.Debug("export started", "job", job.Name, "operation", op.Name)

	return domain.TaskHandle{ID: path.Base(op.Name), Name: op.Name}, nil
}

// operation is a long-running operation resource.
type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		State       string    `json:"state"`
		Description string    `json:"description"`
		UpdateTime  time.Time `json:"updateTime"`
	} `json:"metadata"`
	Error *apiStatus `json:"error,omitempty"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// PollStatus implements output.ImageryBackend.
func (c *Client) PollStatus(ctx context.Context, handle domain.TaskHandle) (domain.TaskStatus, error) {
	name := handle.Name
	if name == "" {
		name = "projects/" + c.config.Project + "/operations/" + handle.ID
	}

	var op operation
	if err := c.do(ctx, http.MethodGet, c.config.BaseURL+"/v1/"+name, nil, &op); err != nil {
		return domain.TaskStatus{}, fmt.Errorf("polling %s: %w", handle.ID, err)
	}

	status := domain.TaskStatus{
		State:       parseState(op.Metadata.State),
		Description: op.Metadata.Description,
		UpdatedAt:   op.Metadata.UpdateTime,
	}
	if op.Error != nil {
		status.Error = op.Error.Message
		if !status.State.IsTerminal() {
			status.State = domain.TaskFailed
		}
	}
	if op.Done && !status.State.IsTerminal() {
		status.State = domain.TaskCompleted
	}
	return status, nil
}

func parseState(state string) domain.TaskState {
	switch state {
	case "RUNNING", "CANCELLING":
		return domain.TaskRunning
	case "SUCCEEDED":
		return domain.TaskCompleted
	case "FAILED":
		return domain.TaskFailed
	case "CANCELLED":
		return domain.TaskCancelled
	default:
		return domain.TaskCreated
	}
}

func (c *Client) projectURL(method string) string {
	return c.config.BaseURL + "/v1/projects/" + c.config.Project + "/" + method
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer googleapi.CloseBody(resp)

	if err := googleapi.CheckResponse(resp); err != nil {
		return remoteError(err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// remoteError converts an API error into a *domain.RemoteError.
func remoteError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Body)
	}
	return &domain.RemoteError{Service: "earthengine", StatusCode: apiErr.Code, Message: msg}
}
