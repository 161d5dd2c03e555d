package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/tool"
)

// DefaultWeatherURL is the KMA ultra-short-term forecast endpoint.
const DefaultWeatherURL = "https://apis.data.go.kr/1360000/VilageFcstInfoService_2.0/getUltraSrtFcst"

// Default grid point (Seoul, Yongsan).
const (
	DefaultNX = 60
	DefaultNY = 126
)

// ErrNoForecast is returned when the response holds no forecast items.
var ErrNoForecast = errors.New("weather: no forecast items")

var seoul = time.FixedZone("KST", 9*60*60)

// PrecipitationCodes maps the PTY category to its description.
var PrecipitationCodes = map[int]string{
	0: "강수 없음",
	1: "비",
	2: "비/눈",
	3: "눈",
	5: "빗방울눈날림",
	6: "진눈깨비",
	7: "눈날림",
}

// SkyCodes maps the SKY category to its description.
var SkyCodes = map[int]string{
	1: "맑음",
	3: "구름많음",
	4: "흐림",
}

var compass = []struct {
	deg float64
	dir string
}{
	{0, "N"}, {22.5, "NNE"}, {45, "NE"}, {67.5, "ENE"},
	{90, "E"}, {112.5, "ESE"}, {135, "SE"}, {157.5, "SSE"},
	{180, "S"}, {202.5, "SSW"}, {225, "SW"}, {247.5, "WSW"},
	{270, "W"}, {292.5, "WNW"}, {315, "NW"}, {337.5, "NNW"},
	{360, "N"},
}

// DegreesToDirection returns the 16-point compass direction closest to deg.
func DegreesToDirection(deg float64) string {
	best, bestDist := "", math.Inf(1)
	for _, c := range compass {
		if d := math.Abs(c.deg - deg); d < bestDist {
			best, bestDist = c.dir, d
		}
	}
	return best
}

// Weather is the forecast closest to the current time.
type Weather struct {
	Raw           map[string]string `json:"raw_data"`
	FormattedText string            `json:"formatted_text"`
	Temperature   float64           `json:"temperature"`
	Humidity      float64           `json:"humidity"`
	SkyCondition  string            `json:"sky_condition"`
	Precipitation string            `json:"precipitation"`
	WindSpeed     string            `json:"wind_speed"`
	WindDirection string            `json:"wind_direction"`
	Location      string            `json:"location"`
}

// WeatherOptions configures a WeatherService.
type WeatherOptions struct {
	ServiceKey string
	URL        string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// Now is read in Korea Standard Time. Defaults to time.Now.
	Now func() time.Time
}

// WeatherService reads the KMA ultra-short-term forecast.
type WeatherService struct {
	opts WeatherOptions
}

// NewWeatherService returns a WeatherService.
func NewWeatherService(opts WeatherOptions) *WeatherService {
	if opts.URL == "" {
		opts.URL = DefaultWeatherURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WeatherService{opts: opts}
}

type forecastItem struct {
	Category  string     `json:"category"`
	FcstTime  string     `json:"fcstTime"`
	FcstValue flexString `json:"fcstValue"`
}

// flexString accepts a JSON string or number. KMA sends values such as
// "강수없음" alongside numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(data)))
	return nil
}

type forecastResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items struct {
				Item []forecastItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

// Current returns the forecast for grid point (nx, ny) closest to now.
func (ws *WeatherService) Current(ctx context.Context, nx, ny int) (*Weather, error) {
	now := ws.opts.Now().In(seoul)
	byTime, err := ws.fetch(ctx, now, nx, ny)
	if err != nil {
		return nil, err
	}
	if len(byTime) == 0 {
		return nil, ErrNoForecast
	}

	fcstTime := closestTime(byTime, now)
	raw := byTime[fcstTime]

	w := &Weather{
		Raw:           raw,
		FormattedText: FormatWeather(raw, now, fcstTime, nx, ny),
		Temperature:   parseFloat(raw["T1H"]),
		Humidity:      parseFloat(raw["REH"]),
		SkyCondition:  lookup(SkyCodes, raw["SKY"], "맑음"),
		Precipitation: lookup(PrecipitationCodes, raw["PTY"], "강수 없음"),
		WindSpeed:     "0",
		WindDirection: DegreesToDirection(parseFloat(raw["VEC"])),
		Location:      fmt.Sprintf("(%d, %d)", nx, ny),
	}
	if v, ok := raw["WSD"]; ok {
		w.WindSpeed = v
	}
	ws.opts.Logger.Debug("weather fetched",
		zap.String("fcst_time", fcstTime),
		zap.String("location", w.Location),
		zap.Float64("temperature", w.Temperature))
	return w, nil
}

func (ws *WeatherService) fetch(ctx context.Context, now time.Time, nx, ny int) (map[string]map[string]string, error) {
	base := now.Add(-time.Hour)

	q := url.Values{}
	q.Set("serviceKey", ws.opts.ServiceKey)
	q.Set("numOfRows", "1000")
	q.Set("pageNo", "1")
	q.Set("dataType", "JSON")
	q.Set("base_date", base.Format("20060102"))
	q.Set("base_time", base.Format("1504"))
	q.Set("nx", strconv.Itoa(nx))
	q.Set("ny", strconv.Itoa(ny))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ws.opts.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := ws.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out forecastResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if code := out.Response.Header.ResultCode; code != "" && code != "00" {
		return nil, fmt.Errorf("weather result %s: %s", code, out.Response.Header.ResultMsg)
	}

	byTime := make(map[string]map[string]string)
	for _, it := range out.Response.Body.Items.Item {
		if byTime[it.FcstTime] == nil {
			byTime[it.FcstTime] = make(map[string]string)
		}
		byTime[it.FcstTime][it.Category] = string(it.FcstValue)
	}
	return byTime, nil
}

// closestTime picks the HHMM key numerically closest to now's HHMM. Ties go
// to the earlier time.
func closestTime(byTime map[string]map[string]string, now time.Time) string {
	keys := make([]string, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	current, _ := strconv.Atoi(now.Format("1504"))
	best, bestDist := keys[0], math.MaxInt
	for _, k := range keys {
		t, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		d := t - current
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// FormatWeather renders one forecast as a Korean summary line. Categories
// missing from raw are left out.
func FormatWeather(raw map[string]string, date time.Time, fcstTime string, nx, ny int) string {
	hh, mm := fcstTime, ""
	if len(fcstTime) == 4 {
		hh, mm = fcstTime[:2], fcstTime[2:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s시 %s분 (%d, %d) 지역의 날씨는 ", date.Format("2006년 01월 02일"), hh, mm, nx, ny)

	var parts []string
	if v, ok := raw["SKY"]; ok {
		parts = append(parts, lookup(SkyCodes, v, v))
	}
	if v, ok := raw["PTY"]; ok {
		parts = append(parts, lookup(PrecipitationCodes, v, v))
	}
	if v, ok := raw["RN1"]; ok {
		parts = append(parts, "시간당 "+v)
	}
	if v, ok := raw["T1H"]; ok {
		parts = append(parts, "기온 "+decimal(v)+"°C")
	}
	if v, ok := raw["REH"]; ok {
		parts = append(parts, "습도 "+decimal(v)+"%")
	}
	if v, ok := raw["UUU"]; ok {
		parts = append(parts, "동서 바람 성분 "+decimal(v)+"m/s")
	}
	if v, ok := raw["VVV"]; ok {
		parts = append(parts, "남북 바람 성분 "+decimal(v)+"m/s")
	}
	if v, ok := raw["VEC"]; ok {
		parts = append(parts, "풍향 "+DegreesToDirection(parseFloat(v)))
	}
	if v, ok := raw["WSD"]; ok {
		parts = append(parts, "풍속 "+v+"m/s")
	}
	if v, ok := raw["LGT"]; ok {
		parts = append(parts, "낙뢰 "+v+"kA")
	}
	b.WriteString(strings.Join(parts, " | "))
	return b.String()
}

// Tool exposes Current as the "get_weather" tool. Input: nx, ny (numbers,
// optional).
func (ws *WeatherService) Tool() tool.Tool {
	return &tool.Func{
		ToolName:    "get_weather",
		Description: "기상청 초단기예보에서 현재 시각과 가장 가까운 날씨를 조회합니다.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"nx": map[string]interface{}{"type": "integer"},
				"ny": map[string]interface{}{"type": "integer"},
			},
		},
		Fn: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			w, err := ws.Current(ctx, tool.IntArg(input, "nx", DefaultNX), tool.IntArg(input, "ny", DefaultNY))
			if err != nil {
				return nil, err
			}
			raw := make(map[string]interface{}, len(w.Raw))
			for k, v := range w.Raw {
				raw[k] = v
			}
			return map[string]interface{}{
				"raw_data":       raw,
				"formatted_text": w.FormattedText,
				"temperature":    w.Temperature,
				"humidity":       w.Humidity,
				"sky_condition":  w.SkyCondition,
				"precipitation":  w.Precipitation,
				"wind_speed":     w.WindSpeed,
				"wind_direction": w.WindDirection,
				"location":       w.Location,
			}, nil
		},
	}
}

func lookup(codes map[int]string, v, def string) string {
	code, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	if s, ok := codes[code]; ok {
		return s
	}
	return def
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

// decimal renders v with at least one fractional digit: "23" becomes
// "23.0".
func decimal(v string) string {
	s := strconv.FormatFloat(parseFloat(v), 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
