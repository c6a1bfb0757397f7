// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package platform

import "context"

// Fake is a fixed-value Environment for tests.
type Fake struct {
	HostnameValue    string
	LocalIPValue     string
	LocalIPErr       error
	DeviceModelValue string
	BatteryValue     BatteryState
	BatteryErr       error
	MicSampleRate    uint32
	Load1            float64
}

var _ Environment = (*Fake)(nil)

func (f *Fake) Hostname() string    { return f.HostnameValue }
func (f *Fake) DeviceModel() string { return f.DeviceModelValue }

func (f *Fake) LocalIP() (string, error) {
	if f.LocalIPErr != nil {
		return "", f.LocalIPErr
	}
	return f.LocalIPValue, nil
}

func (f *Fake) Battery(ctx context.Context) (BatteryState, error) {
	if f.BatteryErr != nil {
		return BatteryState{}, f.BatteryErr
	}
	return f.BatteryValue, nil
}

func (f *Fake) MicrophoneSampleRate() uint32 { return f.MicSampleRate }
func (f *Fake) LoadAverage() float64         { return f.Load1 }
