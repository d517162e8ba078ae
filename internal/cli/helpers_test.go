package cli

import (
	"bytes"
)

// testMocks groups every mocked factory behind an Env.
type testMocks struct {
	configLoader *mockConfigLoader
	ffmpeg       *mockFFmpegResolver
	stores       *mockStoreFactory
	reporters    *mockReporterFactory
	segmenters   *mockSegmenterFactory
	segmenter    *mockSegmenter
	probers      *mockProberFactory
	prober       *mockProber
	transcribers *mockTranscriberFactory
	transcriber  *mockBatchTranscriber
}

func newTestMocks() *testMocks {
	m := &testMocks{
		configLoader: &mockConfigLoader{},
		ffmpeg:       &mockFFmpegResolver{},
		stores:       &mockStoreFactory{},
		reporters:    &mockReporterFactory{},
		segmenter:    &mockSegmenter{},
		prober:       &mockProber{},
		transcriber:  &mockBatchTranscriber{},
	}
	m.segmenters = &mockSegmenterFactory{segmenter: m.segmenter}
	m.probers = &mockProberFactory{prober: m.prober}
	m.transcribers = &mockTranscriberFactory{transcriber: m.transcriber}
	return m
}

// newTestEnv builds an Env wired to fresh mocks, with stdout and stderr
// captured in buffers.
func newTestEnv() (*Env, *testMocks, *bytes.Buffer, *bytes.Buffer) {
	mocks := newTestMocks()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	env := NewEnv(
		WithStdout(stdout),
		WithStderr(stderr),
		WithConfigLoader(mocks.configLoader),
		WithFFmpegResolver(mocks.ffmpeg),
		WithStoreFactory(mocks.stores),
		WithReporterFactory(mocks.reporters),
		WithSegmenterFactory(mocks.segmenters),
		WithProberFactory(mocks.probers),
		WithTranscriberFactory(mocks.transcribers),
	)
	return env, mocks, stdout, stderr
}
