package rembg

// resizeBilinear 单平面双线性插值
// 采样点取像素中心 (align_corners=false)，越界坐标夹到边缘
func resizeBilinear(src []float32, sw, sh int, dst []float32, dw, dh int) {
	if sw == dw && sh == dh {
		copy(dst, src)
		return
	}

	x0s, x1s, lxs := bilinearAxis(sw, dw)
	y0s, y1s, lys := bilinearAxis(sh, dh)

	for dy := 0; dy < dh; dy++ {
		row0 := src[y0s[dy]*sw : y0s[dy]*sw+sw]
		row1 := src[y1s[dy]*sw : y1s[dy]*sw+sw]
		ly := lys[dy]
		out := dst[dy*dw : dy*dw+dw]
		for dx := 0; dx < dw; dx++ {
			x0, x1, lx := x0s[dx], x1s[dx], lxs[dx]
			top := row0[x0] + (row0[x1]-row0[x0])*lx
			bottom := row1[x0] + (row1[x1]-row1[x0])*lx
			out[dx] = top + (bottom-top)*ly
		}
	}
}

// bilinearAxis 预计算一个轴上每个目标坐标的两个源索引和插值权重
func bilinearAxis(srcLen, dstLen int) (lo, hi []int, frac []float32) {
	lo = make([]int, dstLen)
	hi = make([]int, dstLen)
	frac = make([]float32, dstLen)

	scale := float32(srcLen) / float32(dstLen)
	for i := 0; i < dstLen; i++ {
		pos := (float32(i)+0.5)*scale - 0.5
		if pos < 0 {
			pos = 0
		}
		i0 := int(pos)
		if i0 > srcLen-1 {
			i0 = srcLen - 1
		}
		i1 := i0
		if i0 < srcLen-1 {
			i1 = i0 + 1
		}
		lo[i] = i0
		hi[i] = i1
		frac[i] = pos - float32(i0)
	}
	return lo, hi, frac
}
