package drand

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	httpmock "github.com/drand/drand-verify/client/test/http/mock"
	"github.com/drand/drand-verify/client/test/result/mock"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
)

func testCommand(t *testing.T, args []string, exp string) {
	t.Helper()

	out, err := runCommand(t, args)
	require.NoError(t, err)
	if exp == "" {
		return
	}
	require.Contains(t, strings.Trim(out, "\n"), exp)
}

func runCommand(t *testing.T, args []string) (string, error) {
	t.Helper()
	return runCommandAt(t, clock.NewRealClock(), args)
}

func runCommandAt(t *testing.T, clk clock.Clock, args []string) (string, error) {
	t.Helper()

	var buff bytes.Buffer
	t.Logf("RUNNING: %v\n", args)
	cli := CLI()
	cli.Metadata[clockKey] = clk
	cli.Writer = &buff
	err := cli.Run(args)
	return buff.String(), err
}

func groupTOMLPath() string {
	return filepath.Join("testdata", "default.toml")
}

func TestGetFromHTTP(t *testing.T) {
	sch, err := crypto.SchemeFromName(crypto.DefaultSchemeID)
	require.NoError(t, err)
	clk := clock.NewFakeClockAt(time.Now())
	addr, info, cancel, c := httpmock.NewMockHTTPPublicServer(t, false, sch, clk)
	defer cancel()
	url := "http://" + addr

	testCommand(t, []string{"drand-verify", "get", "chain-info", "--url", url, "--insecure"}, hex.EncodeToString(info.PublicKey))
	testCommand(t, []string{"drand-verify", "get", "chain-info", "--hash-only", "--url", url, "--insecure"}, info.HashString())

	round3 := c.Results()[2]
	testCommand(t, []string{"drand-verify", "get", "public", "--round", "3", "--url", url, "--hash", info.HashString()},
		hex.EncodeToString(round3.Rand))
}

func TestGetMaliciousRelay(t *testing.T) {
	sch, err := crypto.SchemeFromName(crypto.DefaultSchemeID)
	require.NoError(t, err)
	clk := clock.NewFakeClockAt(time.Now())
	addr, info, cancel, _ := httpmock.NewMockHTTPPublicServer(t, true, sch, clk)
	defer cancel()

	_, err = runCommand(t, []string{"drand-verify", "get", "public", "--round", "2", "--url", "http://" + addr, "--hash", info.HashString()})
	require.ErrorIs(t, err, drand.ErrInvalidBeacon)
}

func TestVerify(t *testing.T) {
	for _, name := range crypto.ListSchemes() {
		name := name
		t.Run(name, func(t *testing.T) {
			sch, err := crypto.SchemeFromName(crypto.SchemeID(name))
			require.NoError(t, err)
			info, results := mock.VerifiableResultsAt(3, sch, 1_600_000_000, 3*time.Second)

			dir := t.TempDir()
			var infoJSON bytes.Buffer
			require.NoError(t, info.ToJSON(&infoJSON))
			infoPath := filepath.Join(dir, "info.json")
			require.NoError(t, os.WriteFile(infoPath, infoJSON.Bytes(), 0o600))

			beaconPath := filepath.Join(dir, "beacon.json")
			writeBeacon(t, beaconPath, &results[2])
			testCommand(t, []string{"drand-verify", "verify", "--chain-info", infoPath, "--beacon", beaconPath},
				"round 3 verified")

			tampered := results[2]
			tampered.Rnd = 2
			writeBeacon(t, beaconPath, &tampered)
			_, err = runCommand(t, []string{"drand-verify", "verify", "--chain-info", infoPath, "--beacon", beaconPath})
			require.ErrorIs(t, err, drand.ErrFailedVerification)
			require.ErrorIs(t, err, crypto.ErrSignatureFailedVerification)
		})
	}
}

func TestVerifyCheckTime(t *testing.T) {
	sch, err := crypto.SchemeFromName(crypto.SigsOnG1ID)
	require.NoError(t, err)
	const genesis = int64(1_600_000_000)
	info, results := mock.VerifiableResultsAt(3, sch, genesis, 3*time.Second)

	dir := t.TempDir()
	var infoJSON bytes.Buffer
	require.NoError(t, info.ToJSON(&infoJSON))
	infoPath := filepath.Join(dir, "info.json")
	require.NoError(t, os.WriteFile(infoPath, infoJSON.Bytes(), 0o600))
	beaconPath := filepath.Join(dir, "beacon.json")
	writeBeacon(t, beaconPath, &results[2])
	args := []string{"drand-verify", "verify", "--chain-info", infoPath, "--beacon", beaconPath, "--check-time"}

	// round 3 is due at genesis+6
	_, err = runCommandAt(t, clock.NewFakeClockAt(time.Unix(genesis+5, 0)), args)
	require.ErrorIs(t, err, drand.ErrInvalidBeacon)

	out, err := runCommandAt(t, clock.NewFakeClockAt(time.Unix(genesis+6, 0)), args)
	require.NoError(t, err)
	require.Contains(t, out, "round 3 verified")
}

func TestRoundNow(t *testing.T) {
	// mainnet genesis is 1595431050 with a 30s period
	out, err := runCommandAt(t, clock.NewFakeClockAt(time.Unix(1595431050+61, 0)), []string{
		"drand-verify", "round", "--chain-info", groupTOMLPath()})
	require.NoError(t, err)
	require.Contains(t, out, "round 3 is current")
}

func writeBeacon(t *testing.T, path string, r *mock.Result) {
	t.Helper()
	var b bytes.Buffer
	require.NoError(t, printJSON(&b, toBeacon(r)))
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o600))
}

func TestRound(t *testing.T) {
	testCommand(t, []string{"drand-verify", "round", "--chain-info", groupTOMLPath(), "--time", "2020-07-22T15:18:00Z"},
		"round 2 is current")
	testCommand(t, []string{"drand-verify", "round", "--chain-info", groupTOMLPath(), "--round", "2"},
		"round 2 is emitted at 2020-07-22T15:18:00Z ("+strconv.Itoa(1595431080)+")")

	_, err := runCommand(t, []string{"drand-verify", "round", "--chain-info", groupTOMLPath(), "--time", "2020-07-22T15:17:30Z"})
	require.Error(t, err)
}

func TestRoundNeedsChainInfo(t *testing.T) {
	_, err := runCommand(t, []string{"drand-verify", "round", "--chain-info", filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)

	_, err = runCommand(t, []string{"drand-verify", "round"})
	require.Error(t, err)

	testCommand(t, []string{"drand-verify", "round", "--chain-info", groupTOMLPath(), "--round", "1"}, "(1595431050)")
}

func TestSchemes(t *testing.T) {
	out, err := runCommand(t, []string{"drand-verify", "schemes"})
	require.NoError(t, err)
	for _, s := range crypto.ListSchemes() {
		require.Contains(t, out, s)
	}
}
