//-------------------------------------------------------------------------
//
// warehousectl - e-commerce warehouse builder
//
// Copyright (c) 2025 - 2026, Shopmetrics, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Faker provides fake data generation using gofakeit.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for
// reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// Number generates a random integer in [min, max].
func (f *Faker) Number(min, max int) int {
	return f.faker.Number(min, max)
}

// Price generates a random price in [min, max].
func (f *Faker) Price(min, max float64) float64 {
	return f.faker.Price(min, max)
}

// ProductName generates a random product name.
func (f *Faker) ProductName() string {
	return f.faker.ProductName()
}

// Letter generates a random letter.
func (f *Faker) Letter() string {
	return f.faker.Letter()
}

// Pick returns a random element of the given options.
func (f *Faker) Pick(options []string) string {
	return f.faker.RandomString(options)
}

// Float64Range generates a random float in [min, max).
func (f *Faker) Float64Range(min, max float64) float64 {
	return f.faker.Float64Range(min, max)
}
