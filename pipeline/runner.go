package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"enercast/dataset"
	"enercast/db"
	"enercast/ml"
)

// Run executes the full pipeline: prepare the training data, train
// one model per fold with early stopping, prepare the test data with
// the persisted encoder, predict and write the submission file. The
// submission is only written after every prior stage has succeeded.
func Run(cfg *Config, log *zap.Logger) error {
	var store *db.Store
	if cfg.Output.DatabaseFile != "" {
		var err error
		store, err = db.Open(cfg.Output.DatabaseFile)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	ctx := NewContext(cfg, log, store)

	if store != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("run: encode config: %w", err)
		}
		id, err := store.CreateRun(context.Background(), string(cfgJSON))
		if err != nil {
			return err
		}
		ctx.RunID = id
	}

	err := run(ctx)
	if store != nil {
		status := "completed"
		if err != nil {
			status = "failed"
		}
		if ferr := store.FinishRun(context.Background(), ctx.RunID, status, ctx.FinalMetrics); ferr != nil {
			log.Warn("finish run record", zap.Error(ferr))
		}
	}
	return err
}

func run(ctx *Context) error {
	cfg := ctx.Cfg
	f := cfg.Features

	if dir := cfg.Output.ArtifactDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifacts: %w", err)
		}
	}

	metadata, err := readFile(ctx, cfg.Data.Metadata, 0)
	if err != nil {
		return err
	}

	events, err := readFile(ctx, cfg.Data.Train, cfg.Data.MaxRows)
	if err != nil {
		return err
	}
	weather, err := readFile(ctx, cfg.Data.WeatherTrain, 0)
	if err != nil {
		return err
	}
	engineered, err := MergeTables(ctx, events, metadata, weather, "train")
	if err != nil {
		return err
	}
	if engineered, err = DeriveFeatures(ctx, engineered); err != nil {
		return err
	}

	encoder := NewEncoder()
	if err := encoder.Fit(engineered); err != nil {
		return fmt.Errorf("encode: fit: %w", err)
	}
	if _, err := encoder.Apply(engineered); err != nil {
		return fmt.Errorf("encode: train: %w", err)
	}
	if dir := cfg.Output.ArtifactDir; dir != "" {
		if err := encoder.Save(filepath.Join(dir, "encoder.json")); err != nil {
			return err
		}
	}

	raw, err := engineered.Floats(f.TargetColumn)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	y := make([]float64, len(raw))
	for i, v := range raw {
		y[i] = math.Log1p(v)
	}
	if err := engineered.Drop(f.TargetColumn); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	X, featNames, err := ml.TableMatrix(engineered)
	if err != nil {
		return err
	}
	engineered.Release()

	models, err := trainFolds(ctx, X, y, featNames)
	if err != nil {
		return err
	}
	X = nil
	y = nil

	testEvents, err := readFile(ctx, cfg.Data.Test, cfg.Data.MaxRows)
	if err != nil {
		return err
	}
	testWeather, err := readFile(ctx, cfg.Data.WeatherTest, 0)
	if err != nil {
		return err
	}
	testEng, err := MergeTables(ctx, testEvents, metadata, testWeather, "test")
	if err != nil {
		return err
	}
	metadata.Release()
	if testEng, err = DeriveFeatures(ctx, testEng); err != nil {
		return err
	}

	ids, err := testEng.Ints(f.RowIDColumn)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	if err := testEng.Drop(f.RowIDColumn); err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	unseen, err := encoder.Apply(testEng)
	if err != nil {
		return fmt.Errorf("encode: test: %w", err)
	}
	for col, rows := range unseen {
		ctx.Quality.RecordUnseen(col, rows)
	}

	testX, testNames, err := ml.TableMatrix(testEng)
	if err != nil {
		return err
	}
	testEng.Release()
	if err := sameColumns(featNames, testNames); err != nil {
		return err
	}

	preds, err := ml.PredictEnsemble(models, testX)
	if err != nil {
		return err
	}
	testX = nil

	template, err := readFile(ctx, cfg.Data.Template, cfg.Data.MaxRows)
	if err != nil {
		return err
	}
	templateIDs, err := template.Ints(f.RowIDColumn)
	if err != nil {
		return fmt.Errorf("submission: %w", err)
	}
	ordered, err := orderPredictions(f.RowIDColumn, ids, preds, templateIDs)
	if err != nil {
		return err
	}
	if err := dataset.WriteSubmission(cfg.Output.SubmissionFile, f.RowIDColumn, f.TargetColumn, templateIDs, ordered); err != nil {
		return err
	}

	ctx.Quality.Log(ctx.Log)
	if ctx.Store != nil {
		if err := ctx.Store.SaveCounters(context.Background(), ctx.RunID, ctx.Quality.Counters()); err != nil {
			ctx.Log.Warn("save counters", zap.Error(err))
		}
	}
	ctx.Log.Info("run complete",
		zap.Duration("elapsed", time.Since(ctx.Started)),
		zap.String("submission", cfg.Output.SubmissionFile),
		zap.Int("rows", len(ordered)),
	)
	return nil
}

func readFile(ctx *Context, fc FileConfig, maxRows int) (*dataset.Table, error) {
	t, err := dataset.ReadCSV(fc.Path, fc.readOptions(ctx.Cfg.Data.TimeLayout, maxRows))
	if err != nil {
		return nil, err
	}
	ctx.Quality.RecordRows(t.Name(), t.NumRows())
	ctx.Log.Info("loaded",
		zap.String("file", fc.Path),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()),
	)
	return t, nil
}

// trainFolds trains one model per configured fold, each on its own
// reseeded stratified partition, and returns them for averaged
// prediction.
func trainFolds(ctx *Context, X *mat.Dense, y []float64, featNames []string) ([]ml.Regressor, error) {
	cfg := ctx.Cfg
	models := make([]ml.Regressor, 0, cfg.Split.Folds)
	var sum ml.Metrics
	for fold := 0; fold < cfg.Split.Folds; fold++ {
		seed := cfg.Split.Seed + int64(fold)
		trainIdx, valIdx, err := ml.StratifiedSplit(y, cfg.Split.Fraction, cfg.Split.Strata, seed)
		if err != nil {
			return nil, err
		}
		Xtr := ml.RowSubset(X, trainIdx)
		ytr := ml.Subset(y, trainIdx)
		Xval := ml.RowSubset(X, valIdx)
		yval := ml.Subset(y, valIdx)
		ctx.Log.Info("partitioned",
			zap.Int("fold", fold),
			zap.Int("train_rows", len(trainIdx)),
			zap.Int("val_rows", len(valIdx)),
		)

		tcfg := cfg.Train
		tcfg.Seed += int64(fold)
		booster := ml.NewBooster(tcfg)
		booster.Progress = func(ev ml.Evaluation) {
			ctx.Log.Info("evaluation",
				zap.Int("fold", fold),
				zap.Int("round", ev.Round),
				zap.Float64("train_rmse", ev.TrainRMSE),
				zap.Float64("val_rmse", ev.ValRMSE),
			)
			if ctx.Store != nil {
				if err := ctx.Store.SaveEvaluation(context.Background(), ctx.RunID, fold, ev); err != nil {
					ctx.Log.Warn("save evaluation", zap.Error(err))
				}
			}
		}
		if err := booster.Fit(Xtr, ytr, Xval, yval, featNames, cfg.Features.Categorical); err != nil {
			return nil, err
		}
		booster.ReleaseTrainingBuffers()

		if Xval != nil {
			m, err := ml.Summary(yval, booster.Predict(Xval))
			if err != nil {
				return nil, fmt.Errorf("train: validation summary: %w", err)
			}
			sum.RMSE += m.RMSE
			sum.MAE += m.MAE
			sum.R2 += m.R2
			ctx.Log.Info("fold complete",
				zap.Int("fold", fold),
				zap.Int("best_round", booster.BestRound()),
				zap.Int("max_depth", booster.MaxDepth()),
				zap.Float64("val_rmse", m.RMSE),
				zap.Float64("val_mae", m.MAE),
				zap.Float64("val_r2", m.R2),
			)
		} else {
			ctx.Log.Warn("fold has no validation rows", zap.Int("fold", fold))
		}

		importance := booster.FeatureImportance()
		top := importance
		if len(top) > 8 {
			top = top[:8]
		}
		ctx.Log.Info("feature importance", zap.Int("fold", fold), zap.Any("top", top))
		if ctx.Store != nil {
			if err := ctx.Store.SaveImportance(context.Background(), ctx.RunID, fold, importance); err != nil {
				ctx.Log.Warn("save importance", zap.Error(err))
			}
		}
		if dir := cfg.Output.ArtifactDir; dir != "" {
			path := filepath.Join(dir, fmt.Sprintf("model_fold%d.json", fold))
			if err := booster.Save(path); err != nil {
				return nil, err
			}
		}
		models = append(models, booster)
	}

	k := float64(cfg.Split.Folds)
	ctx.FinalMetrics = &ml.Metrics{RMSE: sum.RMSE / k, MAE: sum.MAE / k, R2: sum.R2 / k}
	ctx.Log.Info("training complete",
		zap.Int("folds", cfg.Split.Folds),
		zap.Float64("val_rmse", ctx.FinalMetrics.RMSE),
		zap.Float64("val_mae", ctx.FinalMetrics.MAE),
		zap.Float64("val_r2", ctx.FinalMetrics.R2),
	)
	return models, nil
}

func sameColumns(train, test []string) error {
	if len(train) != len(test) {
		return fmt.Errorf("predict: test has %d feature columns, training had %d", len(test), len(train))
	}
	for i := range train {
		if train[i] != test[i] {
			return fmt.Errorf("predict: feature column %d is %s in test but %s in training", i, test[i], train[i])
		}
	}
	return nil
}

// orderPredictions aligns predictions with the submission template.
// Every template row id must have a prediction.
func orderPredictions(idName string, ids []int64, preds []float64, templateIDs []int64) ([]float64, error) {
	if len(ids) != len(preds) {
		return nil, fmt.Errorf("submission: %d ids but %d predictions", len(ids), len(preds))
	}
	if len(templateIDs) != len(ids) {
		return nil, fmt.Errorf("submission: template has %d rows but %d predictions exist", len(templateIDs), len(ids))
	}
	byID := make(map[int64]float64, len(ids))
	for i, id := range ids {
		byID[id] = preds[i]
	}
	out := make([]float64, len(templateIDs))
	for i, id := range templateIDs {
		v, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("submission: template row %s=%d has no prediction", idName, id)
		}
		out[i] = v
	}
	return out, nil
}
