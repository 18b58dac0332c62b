package rudp

import "time"

const (
	// CwndMax 拥塞窗口上限（包数）
	CwndMax = 1024

	// cwndMin 窗口下限，保证总能发出探测包
	cwndMin = 1

	// Jacobson/Karels 系数：alpha=1/8, beta=1/4
	rttAlpha = 0.125
	rttBeta  = 0.25
)

// congestion AIMD 拥塞控制 + RTT 驱动的 RTO 估计
//
// 慢启动阶段每个新 ACK cwnd+1，到达 ssthresh 后转拥塞避免
// （每个 ACK cwnd += 1/cwnd），丢包信号减半退避
type congestion struct {
	cwnd     float64
	ssthresh float64

	srtt    time.Duration
	rttvar  time.Duration
	lastRTT time.Duration
	rto     time.Duration

	minRTO time.Duration
	maxRTO time.Duration
}

func newCongestion(cwndInit, ssthreshInit int, minRTO, maxRTO time.Duration) *congestion {
	if cwndInit < cwndMin {
		cwndInit = 2
	}
	if ssthreshInit <= 0 {
		ssthreshInit = 64
	}
	c := &congestion{
		cwnd:     float64(cwndInit),
		ssthresh: float64(ssthreshInit),
		minRTO:   minRTO,
		maxRTO:   maxRTO,
	}
	c.rto = c.clampRTO(minRTO * 10)
	return c
}

// canSend 出包闸门：在途包数没到窗口就放行
func (c *congestion) canSend(inFlight int) bool {
	return float64(inFlight) < c.cwnd
}

// onSample 记录一个 RTT 样本并更新 RTO
// 调用方保证样本来自非重传包（Karn 算法）
func (c *congestion) onSample(r time.Duration) {
	c.lastRTT = r

	if c.srtt == 0 {
		// 首个样本：RFC 6298 初始化
		c.srtt = r
		c.rttvar = r / 2
	} else {
		diff := c.srtt - r
		if diff < 0 {
			diff = -diff
		}
		c.rttvar = time.Duration((1-rttBeta)*float64(c.rttvar) + rttBeta*float64(diff))
		c.srtt = time.Duration((1-rttAlpha)*float64(c.srtt) + rttAlpha*float64(r))
	}

	c.rto = c.clampRTO(c.srtt + 4*c.rttvar)
}

// onFreshAck 新 ACK（推进了累计确认）驱动窗口增长
func (c *congestion) onFreshAck() {
	if c.cwnd < c.ssthresh {
		c.cwnd++
	} else {
		c.cwnd += 1 / c.cwnd
	}
	if c.cwnd > CwndMax {
		c.cwnd = CwndMax
	}
}

// onLoss 丢包信号（RTO 超时或三次重复 ACK）：乘性退避
func (c *congestion) onLoss() {
	c.ssthresh = c.cwnd / 2
	if c.ssthresh < 2 {
		c.ssthresh = 2
	}
	c.cwnd = c.ssthresh
}

func (c *congestion) clampRTO(d time.Duration) time.Duration {
	if d < c.minRTO {
		return c.minRTO
	}
	if d > c.maxRTO {
		return c.maxRTO
	}
	return d
}

// currentRTO 当前重传超时
func (c *congestion) currentRTO() time.Duration {
	return c.rto
}

// smoothedRTT 当前平滑 RTT（未采样时为 0）
func (c *congestion) smoothedRTT() time.Duration {
	return c.srtt
}
