package pkg

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPIsLocal(t *testing.T) {
	cases := []struct {
		addr            string
		expectedIsLocal bool
	}{
		{addr: "83.12.53.65:2145", expectedIsLocal: false},
		{addr: "127.23.0.1:35325", expectedIsLocal: false},
		{addr: "172.20.0.1:60102", expectedIsLocal: true},
		{addr: "172.20.0.1:60096", expectedIsLocal: true},
		{addr: "172.200.0.1:60096", expectedIsLocal: true},
		{addr: "172.19.0.1:42452", expectedIsLocal: true},
		{addr: "172.0.0.1:42452", expectedIsLocal: true},
		{addr: "83.12.53.65:214", expectedIsLocal: false},
		{addr: "172.19.0.1:42452", expectedIsLocal: true},
		{addr: "172.0.0.1:352345", expectedIsLocal: true},
		{addr: "111.12.56.65:8080", expectedIsLocal: false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expectedIsLocal, IPIsLocal(tc.addr))
	}
}

func TestReadUserIP(t *testing.T) {
	cases := []struct {
		name          string
		realIp        string
		forwardedFor  string
		remoteAddr    string
		expectedIp    string
		expectedError bool
	}{
		{name: "real ip header", realIp: "83.12.53.65", remoteAddr: "10.0.0.1:5555", expectedIp: "83.12.53.65"},
		{name: "forwarded for", forwardedFor: "83.12.53.65, 10.0.0.2", remoteAddr: "10.0.0.1:5555", expectedIp: "83.12.53.65"},
		{name: "remote addr", remoteAddr: "111.12.56.65:8080", expectedIp: "111.12.56.65"},
		{name: "local", remoteAddr: "127.0.0.1:8080", expectedIp: "localhost"},
		{name: "docker local", remoteAddr: "172.20.0.1:60102", expectedIp: "localhost"},
		{name: "garbage", remoteAddr: "not-an-ip", expectedError: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.realIp != "" {
				req.Header.Set("X-Real-Ip", tc.realIp)
			}
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}

			ip, err := ReadUserIP(req)
			if tc.expectedError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedIp, ip)
		})
	}
}
