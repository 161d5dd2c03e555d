package music

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// 14:20 KST.
var fixedNow = time.Date(2025, 3, 8, 5, 20, 0, 0, time.UTC)

const forecastJSON = `{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL_SERVICE"},
"body":{"items":{"item":[
{"category":"SKY","fcstTime":"1400","fcstValue":"3"},
{"category":"PTY","fcstTime":"1400","fcstValue":"0"},
{"category":"RN1","fcstTime":"1400","fcstValue":"강수없음"},
{"category":"T1H","fcstTime":"1400","fcstValue":23},
{"category":"REH","fcstTime":"1400","fcstValue":"60"},
{"category":"UUU","fcstTime":"1400","fcstValue":"-1.2"},
{"category":"VVV","fcstTime":"1400","fcstValue":"0.5"},
{"category":"VEC","fcstTime":"1400","fcstValue":"200"},
{"category":"WSD","fcstTime":"1400","fcstValue":1.3},
{"category":"LGT","fcstTime":"1400","fcstValue":"0"},
{"category":"SKY","fcstTime":"1500","fcstValue":"4"},
{"category":"T1H","fcstTime":"1500","fcstValue":"21"},
{"category":"SKY","fcstTime":"1300","fcstValue":"1"}
]}}}}`

func weatherServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{
			"serviceKey": "svc-key",
			"numOfRows":  "1000",
			"pageNo":     "1",
			"dataType":   "JSON",
			"base_date":  "20250308",
			"base_time":  "1320",
			"nx":         "60",
			"ny":         "126",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newTestService(url string) *WeatherService {
	return NewWeatherService(WeatherOptions{
		ServiceKey: "svc-key",
		URL:        url,
		Now:        func() time.Time { return fixedNow },
	})
}

func TestWeatherService_Current(t *testing.T) {
	srv := weatherServer(t, http.StatusOK, forecastJSON)
	defer srv.Close()

	got, err := newTestService(srv.URL).Current(context.Background(), DefaultNX, DefaultNY)
	if err != nil {
		t.Fatalf("Current() error = %v, want nil", err)
	}

	want := &Weather{
		Raw: map[string]string{
			"SKY": "3", "PTY": "0", "RN1": "강수없음", "T1H": "23", "REH": "60",
			"UUU": "-1.2", "VVV": "0.5", "VEC": "200", "WSD": "1.3", "LGT": "0",
		},
		FormattedText: "2025년 03월 08일 14시 00분 (60, 126) 지역의 날씨는 구름많음 | 강수 없음 | 시간당 강수없음 | " +
			"기온 23.0°C | 습도 60.0% | 동서 바람 성분 -1.2m/s | 남북 바람 성분 0.5m/s | 풍향 SSW | 풍속 1.3m/s | 낙뢰 0kA",
		Temperature:   23,
		Humidity:      60,
		SkyCondition:  "구름많음",
		Precipitation: "강수 없음",
		WindSpeed:     "1.3",
		WindDirection: "SSW",
		Location:      "(60, 126)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Current() mismatch (-want +got):\n%s", diff)
	}
}

func TestWeatherService_CurrentErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http status", http.StatusInternalServerError, "down", "status 500"},
		{"result code", http.StatusOK, `{"response":{"header":{"resultCode":"03","resultMsg":"NO_DATA"}}}`, "NO_DATA"},
		{"not json", http.StatusOK, "<OpenAPI_ServiceResponse>", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := weatherServer(t, tt.status, tt.body)
			defer srv.Close()

			_, err := newTestService(srv.URL).Current(context.Background(), DefaultNX, DefaultNY)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Current() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	srv := weatherServer(t, http.StatusOK, `{"response":{"header":{"resultCode":"00"},"body":{"items":{"item":[]}}}}`)
	defer srv.Close()
	if _, err := newTestService(srv.URL).Current(context.Background(), DefaultNX, DefaultNY); !errors.Is(err, ErrNoForecast) {
		t.Errorf("Current() error = %v, want ErrNoForecast", err)
	}
}

func TestDegreesToDirection(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{10, "N"},
		{12, "NNE"},
		{90, "E"},
		{200, "SSW"},
		{350, "N"},
		{359, "N"},
		{337.5, "NNW"},
	}
	for _, tt := range tests {
		if got := DegreesToDirection(tt.deg); got != tt.want {
			t.Errorf("DegreesToDirection(%v) = %q, want %q", tt.deg, got, tt.want)
		}
	}
}

func TestFormatWeather_Partial(t *testing.T) {
	got := FormatWeather(map[string]string{"SKY": "9", "T1H": "-3.5"}, fixedNow, "0900", 1, 2)
	want := "2025년 03월 08일 09시 00분 (1, 2) 지역의 날씨는 9 | 기온 -3.5°C"
	if got != want {
		t.Errorf("FormatWeather() = %q, want %q", got, want)
	}
}

func TestWeatherService_Tool(t *testing.T) {
	srv := weatherServer(t, http.StatusOK, forecastJSON)
	defer srv.Close()

	out, err := newTestService(srv.URL).Tool().Call(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}
	if out["sky_condition"] != "구름많음" || out["location"] != "(60, 126)" {
		t.Errorf("Call() = %v", out)
	}
}
